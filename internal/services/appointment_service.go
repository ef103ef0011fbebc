package services

import (
	"context"
	"time"

	"example.com/lifeline/agent/internal/models"
	"example.com/lifeline/agent/internal/repositories"
	"example.com/lifeline/agent/internal/sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AppointmentService handles appointment scheduling on the device
type AppointmentService struct {
	db           *gorm.DB
	donors       *repositories.DonorRepository
	appointments *repositories.AppointmentRepository
	queue        *repositories.QueueRepository
}

// NewAppointmentService creates a new appointment service
func NewAppointmentService(
	db *gorm.DB,
	donors *repositories.DonorRepository,
	appointments *repositories.AppointmentRepository,
	queue *repositories.QueueRepository,
) *AppointmentService {
	return &AppointmentService{
		db:           db,
		donors:       donors,
		appointments: appointments,
		queue:        queue,
	}
}

// ScheduleAppointmentInput is the data captured for an appointment
type ScheduleAppointmentInput struct {
	DonorID     uuid.UUID `json:"donor_id" binding:"required"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	Location    string    `json:"location"`
}

// ScheduleAppointment commits the appointment row and its outbox event in
// one transaction
func (s *AppointmentService) ScheduleAppointment(ctx context.Context, input ScheduleAppointmentInput) (*models.Appointment, error) {
	donor, err := s.donors.GetByID(ctx, input.DonorID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load donor for appointment")
	}

	appointment := &models.Appointment{
		ID:          uuid.New(),
		DonorID:     donor.ID,
		ScheduledAt: input.ScheduledAt,
		Location:    input.Location,
		Status:      "scheduled",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.appointments.WithTx(tx).Create(ctx, appointment); err != nil {
			return err
		}

		builder := sync.NewBuilder(s.queue.WithTx(tx))
		if _, err := builder.EnqueueAppointmentCreate(ctx, appointment, donor.NationalID); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to schedule appointment")
	}

	log.Info().
		Str("appointment_id", appointment.ID.String()).
		Str("donor_id", donor.ID.String()).
		Time("scheduled_at", appointment.ScheduledAt).
		Msg("Appointment scheduled and queued for sync")

	return appointment, nil
}
