package directory

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/apperr"
)

type Service struct {
	doctors  DoctorRepository
	patients PatientRepository
}

func NewService(doctors DoctorRepository, patients PatientRepository) *Service {
	return &Service{doctors: doctors, patients: patients}
}

// -- Doctors --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if d.Name == "" {
		return apperr.Validation("name is required")
	}
	d.Active = true
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if d.Name == "" {
		return apperr.Validation("name is required")
	}
	current, err := s.doctors.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	// The booking counter belongs to the queue's transaction.
	d.LastSequenceNumber = current.LastSequenceNumber
	return s.doctors.Update(ctx, d)
}

// DeactivateDoctor hides the doctor from booking without touching the
// history their queue entries reference.
func (s *Service) DeactivateDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Active = false
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context, activeOnly bool, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, activeOnly, limit, offset)
}

// -- Patients --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if p.Name == "" {
		return apperr.Validation("name is required")
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if p.Name == "" {
		return apperr.Validation("name is required")
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, search, limit, offset)
}
