package models

const (
	RoleStudent   = "student"
	RoleOrganizer = "organizer"
	RoleAdmin     = "admin"
)

// Identity is the authenticated caller of a request, plus the user agent of
// the device the request came from.
type Identity struct {
	AttendeeID string `json:"attendee_id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	DeviceInfo string `json:"device_info,omitempty"`
}

// CanOrganize reports whether the identity may manage events.
func (i *Identity) CanOrganize() bool {
	return i != nil && (i.Role == RoleOrganizer || i.Role == RoleAdmin)
}
