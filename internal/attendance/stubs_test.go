package attendance

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"attendance-backend/internal/models"
	"attendance-backend/internal/repository"
	"attendance-backend/internal/scanner"
)

// memStore is an in-memory EventStore, AttendanceStore and ProfileStore
// with the same conditional-write semantics as the real repositories.
type memStore struct {
	mu       sync.Mutex
	events   map[string]*models.Event
	records  map[string]*models.AttendanceRecord
	profiles map[string]*models.Student
	nextID   int

	eventErr  error
	findErr   error
	createErr error
	closeErr  error

	// beforeCreate runs once, just before CreateIfAbsent checks for a
	// conflict, to simulate a second device winning the race.
	beforeCreate func()
	beforeClose  func()
}

func newMemStore() *memStore {
	return &memStore{
		events:   map[string]*models.Event{},
		records:  map[string]*models.AttendanceRecord{},
		profiles: map[string]*models.Student{},
	}
}

func pairKey(eventID, attendeeID string) string { return eventID + "/" + attendeeID }

func (m *memStore) GetByID(ctx context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.eventErr != nil {
		return nil, m.eventErr
	}
	e, ok := m.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) FindByEventAndAttendee(ctx context.Context, eventID, attendeeID string) (*models.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	r, ok := m.records[pairKey(eventID, attendeeID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) CreateIfAbsent(ctx context.Context, rec *models.AttendanceRecord) (bool, error) {
	if hook := m.beforeCreate; hook != nil {
		m.beforeCreate = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return false, m.createErr
	}
	key := pairKey(rec.EventID, rec.AttendeeID)
	if _, exists := m.records[key]; exists {
		return false, nil
	}
	m.nextID++
	rec.ID = fmt.Sprintf("rec-%d", m.nextID)
	cp := *rec
	m.records[key] = &cp
	return true, nil
}

func (m *memStore) CloseIfOpen(ctx context.Context, id string, timeOut time.Time, minutes int) (bool, error) {
	if hook := m.beforeClose; hook != nil {
		m.beforeClose = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeErr != nil {
		return false, m.closeErr
	}
	for _, r := range m.records {
		if r.ID != id {
			continue
		}
		if r.TimeOut != nil {
			return false, nil
		}
		out := timeOut
		d := minutes
		r.TimeOut = &out
		r.TotalDurationMinutes = &d
		return true, nil
	}
	return false, nil
}

func (m *memStore) record(eventID, attendeeID string) *models.AttendanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[pairKey(eventID, attendeeID)]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// profileView lets the same memStore serve as a ProfileStore, whose GetByID
// collides with the EventStore method.
type profileView struct{ m *memStore }

func (p profileView) GetByID(ctx context.Context, id string) (*models.Student, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	s, ok := p.m.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

type recordingPublisher struct {
	updates []models.AttendanceUpdate
	err     error
}

func (p *recordingPublisher) PublishAttendance(ctx context.Context, u models.AttendanceUpdate) error {
	p.updates = append(p.updates, u)
	return p.err
}

type recordingQueue struct {
	jobs []*models.ReceiptJob
}

func (q *recordingQueue) EnqueueReceipt(ctx context.Context, job *models.ReceiptJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type observation struct {
	mode string
	code string
}

type recordingObserver struct {
	seen []observation
}

func (o *recordingObserver) ObserveScan(mode, code string, elapsed time.Duration) {
	o.seen = append(o.seen, observation{mode, code})
}

// labeledFrame is a camera frame whose decoded text is known up front.
type labeledFrame struct {
	image.Gray
	text string
}

func frame(text string) image.Image {
	return &labeledFrame{Gray: *image.NewGray(image.Rect(0, 0, 1, 1)), text: text}
}

type labelDecoder struct{}

func (labelDecoder) Decode(img image.Image) (string, error) {
	if f, ok := img.(*labeledFrame); ok && f.text != "" {
		return f.text, nil
	}
	return "", scanner.ErrNoPayload
}

// frameDevice plays a fixed list of frames, then reports no new frame.
type frameDevice struct {
	frames   []image.Image
	pos      int
	released int
	err      error
}

func (d *frameDevice) Acquire(ctx context.Context) (scanner.Handle, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d, nil
}

func (d *frameDevice) Attach(ctx context.Context) error { return nil }

func (d *frameDevice) NextFrame(ctx context.Context) (image.Image, error) {
	if d.pos >= len(d.frames) {
		return nil, scanner.ErrFrameNotReady
	}
	f := d.frames[d.pos]
	d.pos++
	return f, nil
}

func (d *frameDevice) Release() error {
	d.released++
	return nil
}
