package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/edgeup/edgeup-backend/pkg/db/models"
)

// PublicProfileDTO is the profile shape visible to any caller. Email and
// credentials stay off it.
type PublicProfileDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Country   string    `json:"country,omitempty"`
	City      string    `json:"city,omitempty"`
	Karma     int       `json:"karma"`
	AvatarURL *string   `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UpdateProfileInput holds optional mutation values for the caller's profile.
type UpdateProfileInput struct {
	Name      *string
	Country   *string
	City      *string
	AvatarURL *string
}

func PublicProfileFromModel(u *models.User) *PublicProfileDTO {
	if u == nil {
		return nil
	}
	return &PublicProfileDTO{
		ID:        u.ID,
		Name:      u.Name,
		Role:      string(u.Role),
		Country:   u.Country,
		City:      u.City,
		Karma:     u.Karma,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}
