// Package model defines the data structures shared by the services and handlers.
package model

import "time"

// Student is one participant of a classroom session, along with the last code
// they ran and what it printed. IDs are only unique within a session.
type Student struct {
	ID          string    `json:"id"`
	SessionCode string    `json:"-"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Output      string    `json:"output"`
	JoinedAt    time.Time `json:"joinedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Deck is an uploaded slide deck rendered to images. Its ID doubles as the
// session code students join with.
type Deck struct {
	ID     string   `json:"sessionCode"`
	Slides []string `json:"slides"`
	Notes  []string `json:"notes,omitempty"`
}
