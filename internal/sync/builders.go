package sync

import (
	"context"
	"time"

	"example.com/lifeline/agent/internal/models"
	"example.com/lifeline/agent/internal/repositories"

	"github.com/google/uuid"
)

// Builder translates committed local mutations into queue-ready events. Each
// method produces the minimal wire payload for its event type and delegates
// the single insert to the outbox; no other I/O happens here.
type Builder struct {
	queue *repositories.QueueRepository
}

// NewBuilder creates a new event builder over the given outbox
func NewBuilder(queue *repositories.QueueRepository) *Builder {
	return &Builder{queue: queue}
}

// EnqueueDonorUpsert queues a donor registration or edit for delivery
func (b *Builder) EnqueueDonorUpsert(ctx context.Context, donor *models.Donor) (uuid.UUID, error) {
	payload := DonorUpsertPayload{
		LocalRef:       donor.ID,
		NationalID:     donor.NationalID,
		FullName:       donor.FullName,
		Phone:          donor.Phone,
		BloodType:      donor.BloodType,
		LastDonationAt: donor.LastDonationAt,
	}
	return b.queue.Enqueue(ctx, EventDonorUpsert, payload, time.Now())
}

// EnqueueDonationCreate queues a recorded donation for delivery
func (b *Builder) EnqueueDonationCreate(ctx context.Context, donation *models.Donation, donorNationalID string) (uuid.UUID, error) {
	payload := DonationCreatePayload{
		LocalRef:        donation.ID,
		DonorNationalID: donorNationalID,
		VolumeML:        donation.VolumeML,
		DonatedAt:       donation.DonatedAt,
		Notes:           donation.Notes,
	}
	return b.queue.Enqueue(ctx, EventDonationCreate, payload, donation.DonatedAt)
}

// EnqueueAppointmentCreate queues a scheduled appointment for delivery
func (b *Builder) EnqueueAppointmentCreate(ctx context.Context, appointment *models.Appointment, donorNationalID string) (uuid.UUID, error) {
	payload := AppointmentCreatePayload{
		LocalRef:        appointment.ID,
		DonorNationalID: donorNationalID,
		ScheduledAt:     appointment.ScheduledAt,
		Location:        appointment.Location,
	}
	return b.queue.Enqueue(ctx, EventAppointmentCreate, payload, time.Now())
}
