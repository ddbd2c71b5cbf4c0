package services

import (
	"context"
	"errors"
	"strings"

	"attendance-backend/internal/models"
	"attendance-backend/internal/repository"
)

type StudentService struct {
	students repository.StudentRepository
	records  repository.AttendanceRepository
}

func NewStudentService(students repository.StudentRepository, records repository.AttendanceRepository) *StudentService {
	return &StudentService{students: students, records: records}
}

func (s *StudentService) Get(ctx context.Context, who *models.Identity) (*models.Student, error) {
	student, err := s.students.GetByID(ctx, who.AttendeeID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "Student profile not found"}
	}
	return student, err
}

// Upsert creates or renames the caller's profile. The email always comes
// from the identity token.
func (s *StudentService) Upsert(ctx context.Context, who *models.Identity, req models.UpsertStudentRequest) (*models.Student, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, &ValidationError{Fields: map[string]string{"full_name": "Full name is required"}}
	}
	student := &models.Student{ID: who.AttendeeID, Email: who.Email, FullName: name}
	if err := s.students.Upsert(ctx, student); err != nil {
		return nil, err
	}
	return student, nil
}

type AttendanceHistory struct {
	Records []*models.AttendanceRecord `json:"records"`
	Stats   models.AttendanceStats     `json:"stats"`
}

func (s *StudentService) History(ctx context.Context, who *models.Identity) (*AttendanceHistory, error) {
	records, err := s.records.ListByAttendee(ctx, who.AttendeeID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*models.AttendanceRecord{}
	}
	return &AttendanceHistory{Records: records, Stats: models.ComputeAttendanceStats(records)}, nil
}
