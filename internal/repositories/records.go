package repositories

import (
	"context"
	"time"

	"example.com/lifeline/agent/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// DonorRepository provides access to donor projections
type DonorRepository struct {
	db *gorm.DB
}

// NewDonorRepository creates a new donor repository
func NewDonorRepository(db *gorm.DB) *DonorRepository {
	return &DonorRepository{db: db}
}

// WithTx returns a repository bound to an open transaction
func (r *DonorRepository) WithTx(tx *gorm.DB) *DonorRepository {
	return &DonorRepository{db: tx}
}

// Create inserts a new donor
func (r *DonorRepository) Create(ctx context.Context, donor *models.Donor) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(donor).Error, "failed to create donor")
}

// GetByID gets a donor by local identifier
func (r *DonorRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Donor, error) {
	var donor models.Donor
	err := r.db.WithContext(ctx).First(&donor, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get donor by ID")
	}
	return &donor, nil
}

// GetByNationalID gets a donor by the business key the remote contract uses
func (r *DonorRepository) GetByNationalID(ctx context.Context, nationalID string) (*models.Donor, error) {
	var donor models.Donor
	err := r.db.WithContext(ctx).Where("national_id = ?", nationalID).First(&donor).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get donor by national ID")
	}
	return &donor, nil
}

// MarkSynced patches a donor row with its server-assigned identifier after a
// push acknowledgement. The row is located by business key: the donor table
// does not store the outbox's client event id, and the row may have been
// modified independently while the push was in flight.
func (r *DonorRepository) MarkSynced(ctx context.Context, nationalID, serverID string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.Donor{}).
		Where("national_id = ?", nationalID).
		Updates(map[string]interface{}{
			"server_id": serverID,
			"synced_at": now,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark donor synced")
	}
	if result.RowsAffected == 0 {
		return errors.New("no donor found for sync acknowledgement")
	}
	return nil
}

// ClaimServerID attaches a server identifier to a donor pulled from the
// remote stream. Conditioned on the row not already carrying one, so
// re-applying the same remote event is a no-op.
func (r *DonorRepository) ClaimServerID(ctx context.Context, nationalID, serverID string) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.Donor{}).
		Where("national_id = ? AND server_id IS NULL", nationalID).
		Updates(map[string]interface{}{
			"server_id": serverID,
			"synced_at": now,
		})
	if result.Error != nil {
		return false, errors.Wrap(result.Error, "failed to claim donor server ID")
	}
	return result.RowsAffected > 0, nil
}

// UpdateFromRemote applies server-side donor edits to the local projection.
// Server wins on the fields it carries.
func (r *DonorRepository) UpdateFromRemote(ctx context.Context, serverID string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.Donor{}).
		Where("server_id = ?", serverID).
		Updates(fields).Error
	return errors.Wrap(err, "failed to apply remote donor update")
}

// UpdateLastDonation records the donor's most recent donation date
func (r *DonorRepository) UpdateLastDonation(ctx context.Context, donorID uuid.UUID, donatedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Donor{}).
		Where("id = ?", donorID).
		Update("last_donation_at", donatedAt)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update donor last donation")
	}
	if result.RowsAffected == 0 {
		return errors.New("no donor updated")
	}
	return nil
}

// DonationRepository provides access to donation projections
type DonationRepository struct {
	db *gorm.DB
}

// NewDonationRepository creates a new donation repository
func NewDonationRepository(db *gorm.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

// WithTx returns a repository bound to an open transaction
func (r *DonationRepository) WithTx(tx *gorm.DB) *DonationRepository {
	return &DonationRepository{db: tx}
}

// Create inserts a new donation
func (r *DonationRepository) Create(ctx context.Context, donation *models.Donation) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(donation).Error, "failed to create donation")
}

// GetByID gets a donation by local identifier
func (r *DonationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	var donation models.Donation
	err := r.db.WithContext(ctx).First(&donation, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get donation by ID")
	}
	return &donation, nil
}

// MarkSynced patches a donation with its server-assigned identifier, located
// by the local correlation id carried through the push payload
func (r *DonationRepository) MarkSynced(ctx context.Context, localRef uuid.UUID, serverID string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("id = ?", localRef).
		Updates(map[string]interface{}{
			"server_id": serverID,
			"synced_at": now,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark donation synced")
	}
	if result.RowsAffected == 0 {
		return errors.New("no donation found for sync acknowledgement")
	}
	return nil
}

// UpdateStatusByServerID applies a remote status change (e.g. lab
// verification) to the local projection
func (r *DonationRepository) UpdateStatusByServerID(ctx context.Context, serverID, status string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("server_id = ?", serverID).
		Update("status", status).Error
	return errors.Wrap(err, "failed to apply remote donation status")
}

// AppointmentRepository provides access to appointment projections
type AppointmentRepository struct {
	db *gorm.DB
}

// NewAppointmentRepository creates a new appointment repository
func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// WithTx returns a repository bound to an open transaction
func (r *AppointmentRepository) WithTx(tx *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: tx}
}

// Create inserts a new appointment
func (r *AppointmentRepository) Create(ctx context.Context, appointment *models.Appointment) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(appointment).Error, "failed to create appointment")
}

// GetByID gets an appointment by local identifier
func (r *AppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	var appointment models.Appointment
	err := r.db.WithContext(ctx).First(&appointment, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get appointment by ID")
	}
	return &appointment, nil
}

// MarkSynced patches an appointment with its server-assigned identifier
func (r *AppointmentRepository) MarkSynced(ctx context.Context, localRef uuid.UUID, serverID string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ?", localRef).
		Updates(map[string]interface{}{
			"server_id": serverID,
			"synced_at": now,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark appointment synced")
	}
	if result.RowsAffected == 0 {
		return errors.New("no appointment found for sync acknowledgement")
	}
	return nil
}

// UpdateStatusByServerID applies a remote status change to the local
// projection
func (r *AppointmentRepository) UpdateStatusByServerID(ctx context.Context, serverID, status string) error {
	err := r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("server_id = ?", serverID).
		Update("status", status).Error
	return errors.Wrap(err, "failed to apply remote appointment status")
}
