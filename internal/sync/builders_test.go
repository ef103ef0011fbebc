package sync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"example.com/lifeline/agent/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestOrderingRank(t *testing.T) {
	require.Equal(t, rankCreatesEntity, orderingRank(EventDonorUpsert))
	require.Equal(t, rankReferencesEntity, orderingRank(EventDonationCreate))
	require.Equal(t, rankReferencesEntity, orderingRank(EventAppointmentCreate))
	require.Equal(t, rankReferencesEntity, orderingRank("campaign.create"))
}

func TestEnqueueDonorUpsertBuildsMinimalPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	builder := NewBuilder(store.queue)

	donor := &models.Donor{
		ID:         uuid.New(),
		NationalID: "N-100",
		FullName:   "Awa Diop",
		Phone:      "+221770000000",
		BloodType:  "A-",
	}

	clientEventID, err := builder.EnqueueDonorUpsert(ctx, donor)
	require.NoError(t, err)

	event, err := store.queue.GetByClientEventID(ctx, clientEventID)
	require.NoError(t, err)
	require.Equal(t, EventDonorUpsert, event.EventType)
	require.Equal(t, models.EventStatusPending, event.Status)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	require.Equal(t, donor.ID.String(), payload["local_ref"])
	require.Equal(t, "N-100", payload["national_id"])
	require.Equal(t, "Awa Diop", payload["full_name"])
	require.Equal(t, "A-", payload["blood_type"])

	// Local bookkeeping columns never cross the wire.
	require.NotContains(t, payload, "server_id")
	require.NotContains(t, payload, "synced_at")
	// Empty optionals are omitted entirely.
	require.NotContains(t, payload, "last_donation_at")
}

func TestEnqueueDonationCreateReferencesDonorByBusinessKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	builder := NewBuilder(store.queue)

	donatedAt := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	donation := &models.Donation{
		ID:        uuid.New(),
		DonorID:   uuid.New(),
		VolumeML:  450,
		DonatedAt: donatedAt,
		Notes:     "first visit",
	}

	clientEventID, err := builder.EnqueueDonationCreate(ctx, donation, "N-100")
	require.NoError(t, err)

	event, err := store.queue.GetByClientEventID(ctx, clientEventID)
	require.NoError(t, err)
	require.Equal(t, EventDonationCreate, event.EventType)

	var payload DonationCreatePayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	require.Equal(t, donation.ID, payload.LocalRef)
	require.Equal(t, "N-100", payload.DonorNationalID)
	require.Equal(t, 450, payload.VolumeML)
	require.True(t, donatedAt.Equal(payload.DonatedAt))
	require.Equal(t, "first visit", payload.Notes)

	// The event is timestamped with the donation time, not the enqueue time.
	require.True(t, donatedAt.Equal(event.OccurredAt.UTC()))
}

func TestEnqueueAppointmentCreate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	builder := NewBuilder(store.queue)

	appointment := &models.Appointment{
		ID:          uuid.New(),
		DonorID:     uuid.New(),
		ScheduledAt: time.Now().Add(72 * time.Hour),
		Location:    "Dakar central clinic",
	}

	clientEventID, err := builder.EnqueueAppointmentCreate(ctx, appointment, "N-100")
	require.NoError(t, err)

	event, err := store.queue.GetByClientEventID(ctx, clientEventID)
	require.NoError(t, err)
	require.Equal(t, EventAppointmentCreate, event.EventType)

	var payload AppointmentCreatePayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	require.Equal(t, appointment.ID, payload.LocalRef)
	require.Equal(t, "N-100", payload.DonorNationalID)
	require.Equal(t, "Dakar central clinic", payload.Location)
}
