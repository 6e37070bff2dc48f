package domain

import "time"

// Event names pushed to connected clients.
const (
	EventProfileUpdated = "profile-updated"
	EventHealthUpdate   = "health-update"
	EventHealthAlert    = "health-alert"
	EventNewPost        = "new-post"
	EventPostLiked      = "post-liked"
	EventPostCommented  = "post-commented"
	EventNewFollower    = "new-follower"
)

// Envelope is the wire shape of a pushed event.
type Envelope struct {
	Event  string    `json:"event"`
	Data   any       `json:"data"`
	SentAt time.Time `json:"sentAt"`
}

// Page describes pagination for list responses.
type Page struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPage computes page counts for total results.
func NewPage(total, page, limit int) Page {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Page{Total: total, Page: page, Limit: limit, Pages: pages}
}
