package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Donor represents a blood donor registered on this device
type Donor struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	NationalID     string     `gorm:"not null;uniqueIndex" json:"national_id"`
	FullName       string     `gorm:"not null" json:"full_name"`
	Phone          string     `json:"phone"`
	BloodType      string     `json:"blood_type"`
	LastDonationAt *time.Time `json:"last_donation_at"`
	ServerID       *string    `gorm:"index" json:"server_id"`
	SyncedAt       *time.Time `json:"synced_at"`
}

// Donation represents a blood donation captured in the field
type Donation struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DonorID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"donor_id"`
	VolumeML  int        `gorm:"not null" json:"volume_ml"`
	Status    string     `gorm:"not null;default:recorded" json:"status"`
	Notes     string     `json:"notes"`
	DonatedAt time.Time  `gorm:"not null" json:"donated_at"`
	ServerID  *string    `gorm:"index" json:"server_id"`
	SyncedAt  *time.Time `json:"synced_at"`
	Donor     Donor      `gorm:"foreignKey:DonorID" json:"-"`
}

// Appointment represents a scheduled donation appointment
type Appointment struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DonorID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"donor_id"`
	ScheduledAt time.Time  `gorm:"not null" json:"scheduled_at"`
	Location    string     `json:"location"`
	Status      string     `gorm:"not null;default:scheduled" json:"status"`
	ServerID    *string    `gorm:"index" json:"server_id"`
	SyncedAt    *time.Time `json:"synced_at"`
	Donor       Donor      `gorm:"foreignKey:DonorID" json:"-"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Donor{},
		&Donation{},
		&Appointment{},
		&QueueEvent{},
		&SyncCursor{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
