package proposal

import (
	"time"

	"backend-pilanitrails/internal/identity"
	"backend-pilanitrails/internal/shared/geo"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"

	// StatusAll lists every proposal regardless of state.
	StatusAll = "all"
)

var Categories = []string{"trail", "viewpoint", "landmark", "park", "food", "stationery", "other"}

func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Actor names who did something: the user id plus the label shown to
// moderators.
type Actor struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func actorOf(u *identity.User) Actor {
	return Actor{ID: u.ID, Label: u.Label()}
}

func (a Actor) value() map[string]any {
	return map[string]any{"id": a.ID, "label": a.Label}
}

type Proposal struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Category        string           `json:"category"`
	Tags            string           `json:"tags,omitempty"`
	ImageURL        string           `json:"imageUrl,omitempty"`
	Coordinates     *geo.Coordinates `json:"coordinates,omitempty"`
	Status          Status           `json:"status"`
	SubmittedBy     Actor            `json:"submittedBy"`
	CreatedAt       time.Time        `json:"createdAt"`
	ReviewedBy      *Actor           `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time       `json:"reviewedAt,omitempty"`
	RejectionReason string           `json:"rejectionReason,omitempty"`
	EditedBy        *Actor           `json:"editedBy,omitempty"`
	EditedAt        *time.Time       `json:"editedAt,omitempty"`
	Votes           int              `json:"votes"`
	Voters          map[string]int   `json:"voters,omitempty"`
	Version         int64            `json:"version"`
}

type Submission struct {
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description" validate:"required"`
	Category    string           `json:"category" validate:"required,category"`
	Tags        string           `json:"tags"`
	ImageURL    string           `json:"imageUrl"`
	Coordinates *geo.Coordinates `json:"coordinates"`
}

type Stats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

type Mine struct {
	Proposals []Proposal `json:"proposals"`
	Stats     Stats      `json:"stats"`
}
