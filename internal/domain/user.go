package domain

import "time"

// Identity represents an athlete account.
type Identity struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	Age          *int
	Bio          string
	Sport        string
	ProfileImage string
	Followers    []string
	Following    []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the cacheable public view of an identity.
type Profile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Age          *int      `json:"age"`
	Bio          string    `json:"bio"`
	Sport        string    `json:"sport"`
	ProfileImage string    `json:"profileImage"`
	Followers    int       `json:"followers"`
	Following    int       `json:"following"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile builds the snapshot stored under the user cache key.
func (i Identity) Profile() Profile {
	return Profile{
		ID:           i.ID,
		Name:         i.Name,
		Email:        i.Email,
		Age:          i.Age,
		Bio:          i.Bio,
		Sport:        i.Sport,
		ProfileImage: i.ProfileImage,
		Followers:    len(i.Followers),
		Following:    len(i.Following),
		UpdatedAt:    i.UpdatedAt,
	}
}

// ProfileUpdate carries optional profile changes; nil fields are left untouched.
type ProfileUpdate struct {
	Name         *string `json:"name"`
	Age          *int    `json:"age"`
	Bio          *string `json:"bio"`
	Sport        *string `json:"sport"`
	ProfileImage *string `json:"profileImage"`
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.Age == nil && u.Bio == nil && u.Sport == nil && u.ProfileImage == nil
}
