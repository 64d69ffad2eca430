package services

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"misterx/models"
)

func TestCreatePlayerHashesPassword(t *testing.T) {
	svc := NewPlayerService(newTestDB(t))

	player, err := svc.CreatePlayer(&CreatePlayerRequest{
		Username: "alice",
		Password: "correct horse battery",
	})
	if err != nil {
		t.Fatalf("CreatePlayer failed: %v", err)
	}
	if player.Role != models.RolePlayer {
		t.Errorf("expected player role, got %q", player.Role)
	}

	var stored models.User
	if err := svc.db.First(&stored, player.ID).Error; err != nil {
		t.Fatalf("failed to reload player: %v", err)
	}
	if stored.PasswordHash == "correct horse battery" {
		t.Fatal("password stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct horse battery")); err != nil {
		t.Errorf("stored hash does not verify: %v", err)
	}
}

func TestCreatePlayerRejectsConflictingGroups(t *testing.T) {
	svc := NewPlayerService(newTestDB(t))
	db := svc.db

	reds := createGroup(t, db, "Reds")
	blues := createGroup(t, db, "Blues")
	createGame(t, db, "Spring Hunt", false, []*models.PlayerGroup{reds, blues}, nil)

	_, err := svc.CreatePlayer(&CreatePlayerRequest{
		Username: "bob",
		Password: "long enough pw",
		GroupIDs: []uint{reds.ID, blues.ID},
	})
	var fieldErrs models.FieldErrors
	if !errors.As(err, &fieldErrs) {
		t.Fatalf("expected FieldErrors, got %v", err)
	}
	if !strings.Contains(fieldErrs["groups"], "Spring Hunt") {
		t.Errorf("conflict error should name the game, got %q", fieldErrs["groups"])
	}
}

func TestCreatePlayerWithNonConflictingGroups(t *testing.T) {
	svc := NewPlayerService(newTestDB(t))
	db := svc.db

	reds := createGroup(t, db, "Reds")
	blues := createGroup(t, db, "Blues")
	// Each group plays a different game, so membership in both is fine
	createGame(t, db, "Spring Hunt", false, []*models.PlayerGroup{reds}, nil)
	createGame(t, db, "Summer Hunt", false, []*models.PlayerGroup{blues}, nil)

	player, err := svc.CreatePlayer(&CreatePlayerRequest{
		Username: "bob",
		Password: "long enough pw",
		GroupIDs: []uint{reds.ID, blues.ID},
	})
	if err != nil {
		t.Fatalf("CreatePlayer failed: %v", err)
	}
	if len(player.Groups) != 2 {
		t.Errorf("expected 2 groups, got %d", len(player.Groups))
	}
}

func TestListPlayersExcludesStaff(t *testing.T) {
	svc := NewPlayerService(newTestDB(t))
	db := svc.db

	createPlayer(t, db, "alice")
	admin := models.User{Username: "root", PasswordHash: "x", IsActive: true, Role: models.RoleAdmin}
	if err := db.Create(&admin).Error; err != nil {
		t.Fatalf("failed to create admin: %v", err)
	}

	players, err := svc.ListPlayers(nil)
	if err != nil {
		t.Fatalf("ListPlayers failed: %v", err)
	}
	if len(players) != 1 || players[0].Username != "alice" {
		t.Errorf("expected only alice, got %+v", players)
	}

	if _, err := svc.GetPlayerByID(admin.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("staff must not resolve as players, got %v", err)
	}
}

func TestDeletePlayerKeepsSubmissions(t *testing.T) {
	svc := NewPlayerService(newTestDB(t))
	db := svc.db

	reds := createGroup(t, db, "Reds")
	statue := createTask(t, db, "Find the statue", 10)
	game := createGame(t, db, "Spring Hunt", true, []*models.PlayerGroup{reds}, []*models.Task{statue})
	alice := createPlayer(t, db, "alice", reds)

	sub := models.Submission{GameID: game.ID, GroupID: reds.ID, TaskID: statue.ID, SubmitterID: &alice.ID}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("failed to create submission: %v", err)
	}

	if err := svc.DeletePlayer(alice.ID); err != nil {
		t.Fatalf("DeletePlayer failed: %v", err)
	}

	var reloaded models.Submission
	if err := db.First(&reloaded, sub.ID).Error; err != nil {
		t.Fatalf("submission should survive player deletion: %v", err)
	}
	if reloaded.SubmitterID != nil {
		t.Errorf("submitter reference should be cleared, got %v", *reloaded.SubmitterID)
	}
}

func TestUpdatePlayerReplacesGroups(t *testing.T) {
	svc := NewPlayerService(newTestDB(t))
	db := svc.db

	reds := createGroup(t, db, "Reds")
	blues := createGroup(t, db, "Blues")
	alice := createPlayer(t, db, "alice", reds)

	groupIDs := []uint{blues.ID}
	updated, err := svc.UpdatePlayer(alice.ID, &UpdatePlayerRequest{GroupIDs: &groupIDs})
	if err != nil {
		t.Fatalf("UpdatePlayer failed: %v", err)
	}
	if len(updated.Groups) != 1 || updated.Groups[0].ID != blues.ID {
		t.Errorf("expected only Blues, got %+v", updated.Groups)
	}
}
