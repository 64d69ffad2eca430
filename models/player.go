package models

// Player is the narrow game-facing view of a User. It holds a reference to
// the identity record and delegates, so game code cannot touch credentials
// or role fields.
type Player struct {
	user *User
}

func AsPlayer(u *User) Player {
	return Player{user: u}
}

func (p Player) ID() uint {
	return p.user.ID
}

func (p Player) Username() string {
	return p.user.Username
}

func (p Player) DisplayName() string {
	return p.user.DisplayName()
}

func (p Player) IsActive() bool {
	return p.user.IsActive
}

func (p Player) Groups() []PlayerGroup {
	return p.user.Groups
}

// InGroup reports whether the player's loaded group memberships include the
// given group.
func (p Player) InGroup(groupID uint) bool {
	for _, g := range p.user.Groups {
		if g.ID == groupID {
			return true
		}
	}
	return false
}
