package models

import "time"

// Student is the attendee profile kept alongside the identity provider's
// account; its FullName is copied onto attendance records.
type Student struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UpsertStudentRequest struct {
	FullName string `json:"full_name"`
}
