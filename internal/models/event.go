package models

import "time"

type EventStatus string

const (
	EventActive   EventStatus = "active"
	EventInactive EventStatus = "inactive"
	EventEnded    EventStatus = "ended"
)

func (s EventStatus) Valid() bool {
	switch s {
	case EventActive, EventInactive, EventEnded:
		return true
	}
	return false
}

type Event struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Location     string      `json:"location"`
	OrganizerID  string      `json:"organizer_id"`
	SessionToken string      `json:"session_token,omitempty"`
	Status       EventStatus `json:"status"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      time.Time   `json:"end_time"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type CreateEventRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartTime   time.Time `json:"start_time"`
}

type UpdateEventStatusRequest struct {
	Status EventStatus `json:"status"`
}
