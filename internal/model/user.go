// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents an account created through Discord login.
//
// The primary key is Discord's own user id (a snowflake, kept as a string).
// It never changes for an account, so it doubles as the owner reference on
// content rows and as the "id" claim inside session tokens.
//
// Votes is not a column: it is the ordered list of content ids taken from the
// votes table, oldest first. It is only populated by lookups that ask for it.
type User struct {
	ID          string    `json:"id"          db:"id"`
	Username    string    `json:"username"    db:"username"`
	Avatar      string    `json:"avatar"      db:"avatar"`
	Email       string    `json:"email"       db:"email"`        // may be empty if Discord withholds it
	DisplayName string    `json:"displayName" db:"display_name"` // Discord global_name, falls back to username
	Admin       bool      `json:"admin"       db:"admin"`
	Votes       []string  `json:"votes"       db:"-"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt"   db:"updated_at"`
}

// CanModify reports whether u may update or delete content owned by authorID.
func (u *User) CanModify(authorID string) bool {
	return u != nil && (u.Admin || u.ID == authorID)
}

// PublicProfile is the shape returned by the unauthenticated user lookup.
// Email and the admin flag are never exposed there.
type PublicProfile struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Avatar      string   `json:"avatar"`
	DisplayName string   `json:"displayName"`
	Votes       []string `json:"votes"`
}

// Public strips private fields from u.
func (u *User) Public() PublicProfile {
	votes := u.Votes
	if votes == nil {
		votes = []string{}
	}
	return PublicProfile{
		ID:          u.ID,
		Username:    u.Username,
		Avatar:      u.Avatar,
		DisplayName: u.DisplayName,
		Votes:       votes,
	}
}

// Me is the /auth/me response body.
type Me struct {
	DiscordID   string `json:"discordId"`
	Username    string `json:"username"`
	Avatar      string `json:"avatar"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Me returns the /auth/me view of u.
func (u *User) Me() Me {
	return Me{
		DiscordID:   u.ID,
		Username:    u.Username,
		Avatar:      u.Avatar,
		Email:       u.Email,
		DisplayName: u.DisplayName,
	}
}
