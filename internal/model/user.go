// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents one account.
//
// WHY ID int64 FOR EVERY BACKEND?
// Tokens carry the user id as a JSON number ("sub") and the resource
// services were written against that contract. The relational stores use
// their native auto-increment key; the document store stamps a synthetic
// integer (userIdHash) on each document and looks users up by it.
//
// WHY CorrelationID?
// Resource services scope their own records by an id that may differ from
// ID in representation: the decimal ID on relational backends, the
// document key on the document backend. The store fills it in so nothing
// above the store has to know which backend is active.
//
// Empty strings stand for "absent" in PasswordHash, GoogleID and AvatarURL.
type User struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	PasswordHash  string    `json:"-"` // never serialized
	GoogleID      string    `json:"googleId,omitempty"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	CorrelationID string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// UserPatch lists the fields Update may change. nil leaves a field as is.
type UserPatch struct {
	Name         *string
	AvatarURL    *string
	GoogleID     *string
	PasswordHash *string
}

// IsEmpty reports whether the patch would change nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Name == nil && p.AvatarURL == nil && p.GoogleID == nil && p.PasswordHash == nil
}

// UserSummary is the public view of a user returned next to a token.
// UserID is the correlation id, so the client and the resource services
// agree on identity without another lookup.
type UserSummary struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	UserID    string `json:"userId"`
}

// AuthResult is the response body of every successful authentication.
type AuthResult struct {
	AccessToken string      `json:"access_token"`
	User        UserSummary `json:"user"`
}

// UserContext is attached to an authenticated request. UserID comes from
// the token payload, not the store, so resource services can scope their
// queries exactly as the issuer intended.
type UserContext struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	GoogleID  string `json:"googleId,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	UserID    string `json:"userId"`
}
