package models

import "time"

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceLate    AttendanceStatus = "late"
)

// AttendanceRecord is the single visit of one attendee to one event. Status
// is fixed at time-in; TimeOut and TotalDurationMinutes are set together.
type AttendanceRecord struct {
	ID                   string           `json:"id"`
	EventID              string           `json:"event_id"`
	EventName            string           `json:"event_name"`
	AttendeeID           string           `json:"attendee_id"`
	AttendeeName         string           `json:"attendee_name"`
	AttendeeEmail        string           `json:"attendee_email"`
	DeviceInfo           string           `json:"device_info"`
	TimeIn               time.Time        `json:"time_in"`
	TimeOut              *time.Time       `json:"time_out"`
	TotalDurationMinutes *int             `json:"total_duration_minutes"`
	Status               AttendanceStatus `json:"status"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// Closed reports whether the record already has a time-out.
func (r *AttendanceRecord) Closed() bool { return r.TimeOut != nil }

type AttendanceStats struct {
	Total     int `json:"total"`
	Present   int `json:"present"`
	Late      int `json:"late"`
	Completed int `json:"completed"`
	// OnTimeRate is the share of records marked present, as a rounded percentage.
	OnTimeRate int `json:"on_time_rate"`
}

func ComputeAttendanceStats(records []*AttendanceRecord) AttendanceStats {
	var stats AttendanceStats
	for _, r := range records {
		stats.Total++
		switch r.Status {
		case AttendancePresent:
			stats.Present++
		case AttendanceLate:
			stats.Late++
		}
		if r.Closed() {
			stats.Completed++
		}
	}
	if stats.Total > 0 {
		stats.OnTimeRate = (stats.Present*100 + stats.Total/2) / stats.Total
	}
	return stats
}
