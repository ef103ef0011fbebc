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

// DonorService handles donor registration on the device
type DonorService struct {
	db     *gorm.DB
	donors *repositories.DonorRepository
	queue  *repositories.QueueRepository
}

// NewDonorService creates a new donor service
func NewDonorService(db *gorm.DB, donors *repositories.DonorRepository, queue *repositories.QueueRepository) *DonorService {
	return &DonorService{
		db:     db,
		donors: donors,
		queue:  queue,
	}
}

// RegisterDonorInput is the data captured for a new donor
type RegisterDonorInput struct {
	NationalID string `json:"national_id" binding:"required"`
	FullName   string `json:"full_name" binding:"required"`
	Phone      string `json:"phone"`
	BloodType  string `json:"blood_type"`
}

// RegisterDonor commits the donor row and its outbox event in one
// transaction. If the event cannot be queued the registration rolls back:
// the user must know their data was not durably captured for delivery.
func (s *DonorService) RegisterDonor(ctx context.Context, input RegisterDonorInput) (*models.Donor, error) {
	donor := &models.Donor{
		ID:         uuid.New(),
		NationalID: input.NationalID,
		FullName:   input.FullName,
		Phone:      input.Phone,
		BloodType:  input.BloodType,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.donors.WithTx(tx).Create(ctx, donor); err != nil {
			return err
		}

		builder := sync.NewBuilder(s.queue.WithTx(tx))
		if _, err := builder.EnqueueDonorUpsert(ctx, donor); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to register donor")
	}

	log.Info().
		Str("donor_id", donor.ID.String()).
		Str("national_id", donor.NationalID).
		Msg("Donor registered and queued for sync")

	return donor, nil
}
