package sync

import (
	"time"

	"github.com/google/uuid"
)

// Outbound event types. DonorUpsert creates the entity the other two
// reference, so it sorts ahead of them within a push batch.
const (
	EventDonorUpsert       = "donor.upsert"
	EventDonationCreate    = "donation.create"
	EventAppointmentCreate = "appointment.create"
)

// Ordering classes for the referential-integrity sort. Lower ranks are
// transmitted first.
const (
	rankCreatesEntity    = 0
	rankReferencesEntity = 1
)

// orderingRank maps an event type to its ordering class. Unknown types sort
// last so a contract addition cannot jump ahead of the entities it references.
func orderingRank(eventType string) int {
	if eventType == EventDonorUpsert {
		return rankCreatesEntity
	}
	return rankReferencesEntity
}

// DonorUpsertPayload is the wire payload for a donor registration or edit.
// It carries only the fields the remote contract expects, never the full
// local record.
type DonorUpsertPayload struct {
	LocalRef       uuid.UUID  `json:"local_ref"`
	NationalID     string     `json:"national_id"`
	FullName       string     `json:"full_name"`
	Phone          string     `json:"phone,omitempty"`
	BloodType      string     `json:"blood_type,omitempty"`
	LastDonationAt *time.Time `json:"last_donation_at,omitempty"`
}

// DonationCreatePayload is the wire payload for a recorded donation. The
// donor is referenced by business key; the server resolves it to its own
// identifier.
type DonationCreatePayload struct {
	LocalRef        uuid.UUID `json:"local_ref"`
	DonorNationalID string    `json:"donor_national_id"`
	VolumeML        int       `json:"volume_ml"`
	DonatedAt       time.Time `json:"donated_at"`
	Notes           string    `json:"notes,omitempty"`
}

// AppointmentCreatePayload is the wire payload for a scheduled appointment
type AppointmentCreatePayload struct {
	LocalRef        uuid.UUID `json:"local_ref"`
	DonorNationalID string    `json:"donor_national_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	Location        string    `json:"location,omitempty"`
}

// Inbound aggregate types on the remote event stream
const (
	AggregateDonor       = "donor"
	AggregateDonation    = "donation"
	AggregateAppointment = "appointment"
)
