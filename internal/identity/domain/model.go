package domain

import "time"

// User mirrors the identity-provider user record.
// The provider-issued UID is the primary identifier; the client never
// writes to this struct outside of a state-change notification.
type User struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// Profile is the users/{uid} document. Created lazily on first
// sign-in and never deleted by this client.
type Profile struct {
	UID         string    `json:"uid" firestore:"-"`
	DisplayName string    `json:"display_name" firestore:"displayName"`
	Email       string    `json:"email" firestore:"email"`
	CreatedAt   time.Time `json:"created_at" firestore:"createdAt"`
	LastLogin   time.Time `json:"last_login" firestore:"lastLogin"`
}

// Credential is what a successful provider sign-in yields. The ID
// token authenticates subsequent document-store calls made on the
// user's behalf; the refresh token is held in memory only.
type Credential struct {
	User         User
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
}

// DefaultDisplayName falls back to the local part of the email when
// the provider has no display name for the account.
func DefaultDisplayName(displayName, email string) string {
	if displayName != "" {
		return displayName
	}
	for i := 0; i < len(email); i++ {
		if email[i] == '@' {
			return email[:i]
		}
	}
	return email
}
