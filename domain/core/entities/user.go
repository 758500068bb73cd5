package entities

import "time"

// User is the full user record served by the user directory
type User struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	DisplayName     string    `json:"displayName"`
	Email           string    `json:"email"`
	Bio             string    `json:"bio,omitempty"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// PublicUser is the projection of a user that may be shown next to a post
type PublicUser struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	DisplayName     string `json:"displayName"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

// Public returns the public projection of the user
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Username:        u.Username,
		DisplayName:     u.DisplayName,
		ProfileImageURL: u.ProfileImageURL,
	}
}
