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

// DonationService handles donation capture on the device
type DonationService struct {
	db        *gorm.DB
	donors    *repositories.DonorRepository
	donations *repositories.DonationRepository
	queue     *repositories.QueueRepository
}

// NewDonationService creates a new donation service
func NewDonationService(
	db *gorm.DB,
	donors *repositories.DonorRepository,
	donations *repositories.DonationRepository,
	queue *repositories.QueueRepository,
) *DonationService {
	return &DonationService{
		db:        db,
		donors:    donors,
		donations: donations,
		queue:     queue,
	}
}

// RecordDonationInput is the data captured for a donation
type RecordDonationInput struct {
	DonorID   uuid.UUID  `json:"donor_id" binding:"required"`
	VolumeML  int        `json:"volume_ml" binding:"required"`
	Notes     string     `json:"notes"`
	DonatedAt *time.Time `json:"donated_at"`
}

// RecordDonation commits the donation, the donor's last-donation date and
// the outbox event as one atomic transaction, so an interruption cannot
// leave a donation without the donor update or a captured row without its
// queued event.
func (s *DonationService) RecordDonation(ctx context.Context, input RecordDonationInput) (*models.Donation, error) {
	donor, err := s.donors.GetByID(ctx, input.DonorID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load donor for donation")
	}

	donatedAt := time.Now()
	if input.DonatedAt != nil {
		donatedAt = *input.DonatedAt
	}

	donation := &models.Donation{
		ID:        uuid.New(),
		DonorID:   donor.ID,
		VolumeML:  input.VolumeML,
		Status:    "recorded",
		Notes:     input.Notes,
		DonatedAt: donatedAt,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.donations.WithTx(tx).Create(ctx, donation); err != nil {
			return err
		}

		if err := s.donors.WithTx(tx).UpdateLastDonation(ctx, donor.ID, donatedAt); err != nil {
			return err
		}

		builder := sync.NewBuilder(s.queue.WithTx(tx))
		if _, err := builder.EnqueueDonationCreate(ctx, donation, donor.NationalID); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to record donation")
	}

	log.Info().
		Str("donation_id", donation.ID.String()).
		Str("donor_id", donor.ID.String()).
		Int("volume_ml", donation.VolumeML).
		Msg("Donation recorded and queued for sync")

	return donation, nil
}
