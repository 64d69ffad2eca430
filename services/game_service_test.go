package services

import (
	"errors"
	"strings"
	"testing"

	"misterx/models"
)

func newGameService(t *testing.T) *GameService {
	t.Helper()
	return NewGameService(newTestDB(t), nil, newTestStorage(t))
}

func TestCreateGameDefaults(t *testing.T) {
	svc := newGameService(t)

	game, err := svc.CreateGame(&CreateGameRequest{})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if !strings.HasPrefix(game.Name, "Mister X ") {
		t.Errorf("expected default name, got %q", game.Name)
	}
	if game.Active {
		t.Error("new game should not be active by default")
	}
	if game.Date.IsZero() {
		t.Error("expected a default date")
	}
}

func TestCreateSecondActiveGameConflicts(t *testing.T) {
	svc := newGameService(t)

	first, err := svc.CreateGame(&CreateGameRequest{Name: "Spring Hunt", Active: true})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	_, err = svc.CreateGame(&CreateGameRequest{Name: "Summer Hunt", Active: true})
	var conflict *models.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Fields["active"] != "There is an active game already." {
		t.Errorf("unexpected conflict message: %q", conflict.Fields["active"])
	}

	// The existing active game must be untouched
	reloaded, err := svc.GetGameByID(first.ID)
	if err != nil {
		t.Fatalf("GetGameByID failed: %v", err)
	}
	if !reloaded.Active {
		t.Error("first game lost its active flag")
	}
}

func TestCreateInactiveGamesAlongsideActive(t *testing.T) {
	svc := newGameService(t)

	if _, err := svc.CreateGame(&CreateGameRequest{Name: "Spring Hunt", Active: true}); err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if _, err := svc.CreateGame(&CreateGameRequest{Name: "Summer Hunt"}); err != nil {
		t.Fatalf("creating an inactive game should succeed: %v", err)
	}
	if _, err := svc.CreateGame(&CreateGameRequest{Name: "Autumn Hunt"}); err != nil {
		t.Fatalf("creating another inactive game should succeed: %v", err)
	}
}

func TestActivateGameConflicts(t *testing.T) {
	svc := newGameService(t)

	if _, err := svc.CreateGame(&CreateGameRequest{Name: "Spring Hunt", Active: true}); err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	second, err := svc.CreateGame(&CreateGameRequest{Name: "Summer Hunt"})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	_, err = svc.UpdateGame(second.ID, &UpdateGameRequest{Active: boolPtr(true)})
	var conflict *models.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError on activation, got %v", err)
	}
}

func TestUpdateGameRejectsOverlappingGroups(t *testing.T) {
	svc := newGameService(t)
	db := svc.db

	reds := createGroup(t, db, "Reds")
	blues := createGroup(t, db, "Blues")
	createPlayer(t, db, "bob", reds, blues)

	game, err := svc.CreateGame(&CreateGameRequest{Name: "Spring Hunt"})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	groupIDs := []uint{reds.ID, blues.ID}
	_, err = svc.UpdateGame(game.ID, &UpdateGameRequest{GroupIDs: &groupIDs})
	var fieldErrs models.FieldErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("expected FieldErrors, got %v", err)
	}
	if !strings.Contains(fieldErrs["groups"], "bob") {
		t.Errorf("overlap error should name the player, got %q", fieldErrs["groups"])
	}
}

func TestUpdateGameAssignsDisjointGroups(t *testing.T) {
	svc := newGameService(t)
	db := svc.db

	reds := createGroup(t, db, "Reds")
	blues := createGroup(t, db, "Blues")
	createPlayer(t, db, "alice", reds)
	createPlayer(t, db, "bob", blues)

	game, err := svc.CreateGame(&CreateGameRequest{Name: "Spring Hunt"})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	groupIDs := []uint{reds.ID, blues.ID}
	updated, err := svc.UpdateGame(game.ID, &UpdateGameRequest{GroupIDs: &groupIDs})
	if err != nil {
		t.Fatalf("UpdateGame failed: %v", err)
	}
	if len(updated.Groups) != 2 {
		t.Errorf("expected 2 groups, got %d", len(updated.Groups))
	}
}

func TestUpdateGameSyncsTasks(t *testing.T) {
	svc := newGameService(t)
	db := svc.db

	a := createTask(t, db, "Find the statue", 10)
	b := createTask(t, db, "Photograph a tram", 20)
	c := createTask(t, db, "Sing on the square", 30)

	game, err := svc.CreateGame(&CreateGameRequest{Name: "Spring Hunt"})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	taskIDs := []uint{a.ID, b.ID}
	if _, err := svc.UpdateGame(game.ID, &UpdateGameRequest{TaskIDs: &taskIDs}); err != nil {
		t.Fatalf("UpdateGame failed: %v", err)
	}

	// Replace b with c; a keeps its association
	taskIDs = []uint{c.ID, a.ID}
	updated, err := svc.UpdateGame(game.ID, &UpdateGameRequest{TaskIDs: &taskIDs})
	if err != nil {
		t.Fatalf("UpdateGame failed: %v", err)
	}

	if len(updated.Tasks) != 2 {
		t.Fatalf("expected 2 attached tasks, got %d", len(updated.Tasks))
	}
	if updated.Tasks[0].TaskID != c.ID || updated.Tasks[1].TaskID != a.ID {
		t.Errorf("tasks out of order: got %d, %d", updated.Tasks[0].TaskID, updated.Tasks[1].TaskID)
	}
	for i, ot := range updated.Tasks {
		if ot.TaskNumber == nil || *ot.TaskNumber != i+1 {
			t.Errorf("task %d has wrong number %v", ot.TaskID, ot.TaskNumber)
		}
	}
}

func TestReorderTasks(t *testing.T) {
	svc := newGameService(t)
	db := svc.db

	a := createTask(t, db, "Find the statue", 10)
	b := createTask(t, db, "Photograph a tram", 20)
	c := createTask(t, db, "Sing on the square", 30)
	game := createGame(t, db, "Spring Hunt", false, nil, []*models.Task{a, b, c})

	if err := svc.ReorderTasks(game.ID, []uint{c.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("ReorderTasks failed: %v", err)
	}

	reloaded, err := svc.GetGameByID(game.ID)
	if err != nil {
		t.Fatalf("GetGameByID failed: %v", err)
	}
	want := []uint{c.ID, a.ID, b.ID}
	if len(reloaded.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(reloaded.Tasks))
	}
	for i, ot := range reloaded.Tasks {
		if ot.TaskID != want[i] {
			t.Errorf("position %d: expected task %d, got %d", i+1, want[i], ot.TaskID)
		}
	}
}

func TestReorderTasksRejectsUnattachedTask(t *testing.T) {
	svc := newGameService(t)
	db := svc.db

	a := createTask(t, db, "Find the statue", 10)
	stranger := createTask(t, db, "Photograph a tram", 20)
	game := createGame(t, db, "Spring Hunt", false, nil, []*models.Task{a})

	err := svc.ReorderTasks(game.ID, []uint{stranger.ID, a.ID})
	var fieldErrs models.FieldErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("expected FieldErrors, got %v", err)
	}
	if fieldErrs["tasks"] == "" {
		t.Error("expected an error naming the unattached task")
	}
}

func TestActiveGame(t *testing.T) {
	svc := newGameService(t)

	if _, err := svc.ActiveGame(); !errors.Is(err, models.ErrNoActiveGame) {
		t.Fatalf("expected ErrNoActiveGame, got %v", err)
	}

	created, err := svc.CreateGame(&CreateGameRequest{Name: "Spring Hunt", Active: true})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	active, err := svc.ActiveGame()
	if err != nil {
		t.Fatalf("ActiveGame failed: %v", err)
	}
	if active.ID != created.ID {
		t.Errorf("expected game %d, got %d", created.ID, active.ID)
	}
}

func TestActiveGameForPlayer(t *testing.T) {
	svc := newGameService(t)
	db := svc.db

	reds := createGroup(t, db, "Reds")
	blues := createGroup(t, db, "Blues")
	alice := createPlayer(t, db, "alice", reds)
	outsider := createPlayer(t, db, "bob", blues)

	createGame(t, db, "Spring Hunt", true, []*models.PlayerGroup{reds}, nil)

	game, group, err := svc.ActiveGameForPlayer(alice.ID)
	if err != nil {
		t.Fatalf("ActiveGameForPlayer failed: %v", err)
	}
	if game.Name != "Spring Hunt" || group.ID != reds.ID {
		t.Errorf("got game %q, group %d", game.Name, group.ID)
	}

	// A player whose group is not in the game sees no active game
	if _, _, err := svc.ActiveGameForPlayer(outsider.ID); !errors.Is(err, models.ErrNoActiveGame) {
		t.Errorf("expected ErrNoActiveGame for outsider, got %v", err)
	}
}

func TestScoreboardFirstAcceptance(t *testing.T) {
	svc := newGameService(t)
	db := svc.db

	reds := createGroup(t, db, "Reds")
	blues := createGroup(t, db, "Blues")
	statue := createTask(t, db, "Find the statue", 10)
	tram := createTask(t, db, "Photograph a tram", 20)
	game := createGame(t, db, "Spring Hunt", true, []*models.PlayerGroup{reds, blues}, []*models.Task{statue, tram})

	subs := []models.Submission{
		// Two accepted claims by Reds on the same task: only the first scores
		{GameID: game.ID, GroupID: reds.ID, TaskID: statue.ID, Accepted: boolPtr(true)},
		{GameID: game.ID, GroupID: reds.ID, TaskID: statue.ID, Accepted: boolPtr(true)},
		// Blues complete the other task
		{GameID: game.ID, GroupID: blues.ID, TaskID: tram.ID, Accepted: boolPtr(true)},
		// Rejected and unreviewed submissions never score
		{GameID: game.ID, GroupID: blues.ID, TaskID: statue.ID, Accepted: boolPtr(false)},
		{GameID: game.ID, GroupID: reds.ID, TaskID: tram.ID},
	}
	for i := range subs {
		if err := db.Create(&subs[i]).Error; err != nil {
			t.Fatalf("failed to create submission: %v", err)
		}
	}

	entries, err := svc.Scoreboard(game.ID)
	if err != nil {
		t.Fatalf("Scoreboard failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Group.ID != blues.ID || entries[0].Points != 20 {
		t.Errorf("expected Blues with 20 points first, got %q with %d", entries[0].Group.Name, entries[0].Points)
	}
	if entries[1].Group.ID != reds.ID || entries[1].Points != 10 {
		t.Errorf("expected Reds with 10 points, got %q with %d", entries[1].Group.Name, entries[1].Points)
	}
}

func TestScoreboardCountsOverrides(t *testing.T) {
	svc := newGameService(t)
	db := svc.db

	reds := createGroup(t, db, "Reds")
	statue := createTask(t, db, "Find the statue", 10)
	game := createGame(t, db, "Spring Hunt", true, []*models.PlayerGroup{reds}, []*models.Task{statue})

	subs := []models.Submission{
		{GameID: game.ID, GroupID: reds.ID, TaskID: statue.ID, Accepted: boolPtr(true)},
		// A later accepted duplicate with an override still scores
		{GameID: game.ID, GroupID: reds.ID, TaskID: statue.ID, Accepted: boolPtr(true), PointsOverride: uintPtr(5)},
	}
	for i := range subs {
		if err := db.Create(&subs[i]).Error; err != nil {
			t.Fatalf("failed to create submission: %v", err)
		}
	}

	entries, err := svc.Scoreboard(game.ID)
	if err != nil {
		t.Fatalf("Scoreboard failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Points != 15 {
		t.Fatalf("expected Reds with 15 points, got %+v", entries)
	}
}

func TestDeleteGameCascades(t *testing.T) {
	svc := newGameService(t)
	db := svc.db

	reds := createGroup(t, db, "Reds")
	statue := createTask(t, db, "Find the statue", 10)
	game := createGame(t, db, "Spring Hunt", false, []*models.PlayerGroup{reds}, []*models.Task{statue})

	sub := models.Submission{GameID: game.ID, GroupID: reds.ID, TaskID: statue.ID}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}

	if err := svc.DeleteGame(game.ID); err != nil {
		t.Fatalf("DeleteGame failed: %v", err)
	}

	var count int64
	db.Model(&models.Submission{}).Where("game_id = ?", game.ID).Count(&count)
	if count != 0 {
		t.Errorf("expected submissions gone, found %d", count)
	}
	db.Model(&models.OrderedTask{}).Where("game_id = ?", game.ID).Count(&count)
	if count != 0 {
		t.Errorf("expected task associations gone, found %d", count)
	}

	// The group and the task themselves survive
	var group models.PlayerGroup
	if err := db.First(&group, reds.ID).Error; err != nil {
		t.Errorf("group should survive game deletion: %v", err)
	}
	var task models.Task
	if err := db.First(&task, statue.ID).Error; err != nil {
		t.Errorf("task should survive game deletion: %v", err)
	}
}

func TestListGamesFilters(t *testing.T) {
	svc := newGameService(t)

	if _, err := svc.CreateGame(&CreateGameRequest{Name: "Spring Hunt", Active: true}); err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if _, err := svc.CreateGame(&CreateGameRequest{Name: "Summer Hunt"}); err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	games, err := svc.ListGames(&GameFilter{Name: "spring"})
	if err != nil {
		t.Fatalf("ListGames failed: %v", err)
	}
	if len(games) != 1 || games[0].Name != "Spring Hunt" {
		t.Errorf("name filter: expected Spring Hunt, got %+v", games)
	}

	games, err = svc.ListGames(&GameFilter{Active: boolPtr(false)})
	if err != nil {
		t.Fatalf("ListGames failed: %v", err)
	}
	if len(games) != 1 || games[0].Name != "Summer Hunt" {
		t.Errorf("active filter: expected Summer Hunt, got %+v", games)
	}
}
