package attendance

import (
	"fmt"
	"net/http"

	"attendance-backend/internal/models"
)

type OutcomeCode string

const (
	CodeTimeIn              OutcomeCode = "TIME_IN"
	CodeTimeOut             OutcomeCode = "TIME_OUT"
	CodeAlreadyComplete     OutcomeCode = "ALREADY_COMPLETE"
	CodeInvalidPayload      OutcomeCode = "INVALID_PAYLOAD"
	CodeNoPayloadFound      OutcomeCode = "NO_PAYLOAD_FOUND"
	CodeEventNotFound       OutcomeCode = "EVENT_NOT_FOUND"
	CodeInvalidToken        OutcomeCode = "INVALID_TOKEN"
	CodeEventClosed         OutcomeCode = "EVENT_CLOSED"
	CodeEventEnded          OutcomeCode = "EVENT_ENDED"
	CodeLookupUncertain     OutcomeCode = "LOOKUP_UNCERTAIN"
	CodeStoreUnavailable    OutcomeCode = "STORE_UNAVAILABLE"
	CodeNotAuthenticated    OutcomeCode = "NOT_AUTHENTICATED"
	CodeProfileNotFound     OutcomeCode = "PROFILE_NOT_FOUND"
	CodeDeviceAttachTimeout OutcomeCode = "DEVICE_ATTACH_TIMEOUT"
	CodePermissionDenied    OutcomeCode = "PERMISSION_DENIED"
	CodeDeviceNotFound      OutcomeCode = "DEVICE_NOT_FOUND"
)

type Category string

const (
	CategorySuccess      Category = "success"
	CategoryInput        Category = "input"
	CategoryAdmission    Category = "admission"
	CategoryConsistency  Category = "consistency"
	CategoryDevice       Category = "device"
	CategoryPrecondition Category = "precondition"
)

type codeInfo struct {
	category  Category
	status    int
	retryable bool
	message   string
}

var codes = map[OutcomeCode]codeInfo{
	CodeTimeIn:              {CategorySuccess, http.StatusCreated, false, "Time in recorded"},
	CodeTimeOut:             {CategorySuccess, http.StatusOK, false, "Time out recorded"},
	CodeAlreadyComplete:     {CategorySuccess, http.StatusOK, false, "You have already checked in and out for this event."},
	CodeInvalidPayload:      {CategoryInput, http.StatusBadRequest, false, "Invalid QR code format. No event ID found."},
	CodeNoPayloadFound:      {CategoryInput, http.StatusUnprocessableEntity, false, "No QR code detected. Try another image."},
	CodeEventNotFound:       {CategoryAdmission, http.StatusNotFound, false, "Event not found."},
	CodeInvalidToken:        {CategoryAdmission, http.StatusForbidden, false, "Invalid or expired QR code."},
	CodeEventClosed:         {CategoryAdmission, http.StatusConflict, false, "Event is not currently accepting attendance."},
	CodeEventEnded:          {CategoryAdmission, http.StatusGone, false, "Event has ended."},
	CodeLookupUncertain:     {CategoryConsistency, http.StatusServiceUnavailable, true, "Could not confirm your attendance state. Please scan again."},
	CodeStoreUnavailable:    {CategoryConsistency, http.StatusServiceUnavailable, true, "Attendance store is unavailable. Please try again."},
	CodeNotAuthenticated:    {CategoryPrecondition, http.StatusUnauthorized, false, "User not authenticated. Please log in."},
	CodeProfileNotFound:     {CategoryPrecondition, http.StatusPreconditionFailed, false, "Student profile not found. Please complete registration first."},
	CodeDeviceAttachTimeout: {CategoryDevice, http.StatusGatewayTimeout, true, "Could not attach camera automatically. Press Retry."},
	CodePermissionDenied:    {CategoryDevice, http.StatusForbidden, false, "Camera permission needed. Please allow camera access."},
	CodeDeviceNotFound:      {CategoryDevice, http.StatusNotFound, false, "No camera found on this device."},
}

func (c OutcomeCode) Category() Category { return codes[c].category }

// HTTPStatus is the response status used when the code is returned over HTTP.
func (c OutcomeCode) HTTPStatus() int {
	if info, ok := codes[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Retryable reports whether repeating the same scan may succeed.
func (c OutcomeCode) Retryable() bool { return codes[c].retryable }

func (c OutcomeCode) DefaultMessage() string { return codes[c].message }

// Error carries an outcome code through the gate and the recorder.
type Error struct {
	Code OutcomeCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code OutcomeCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Outcome is the single user-facing result of one scan attempt.
type Outcome struct {
	Code    OutcomeCode
	Message string
	Event   *models.Event
	Record  *models.AttendanceRecord
	Err     error
}

// OK reports whether the scan was accepted, including the informational
// already-complete case.
func (o Outcome) OK() bool { return o.Code.Category() == CategorySuccess }

func (o Outcome) Retryable() bool { return o.Code.Retryable() }

func (o Outcome) Wire() models.ScanOutcomeMessage {
	return models.ScanOutcomeMessage{
		Code:      string(o.Code),
		Message:   o.Message,
		Retryable: o.Retryable(),
		Record:    o.Record,
	}
}

func failure(code OutcomeCode, err error) Outcome {
	return Outcome{Code: code, Message: code.DefaultMessage(), Err: err}
}
