package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/lifeline/agent/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// pullServer is a fake remote that serves scripted pages keyed by cursor
type pullServer struct {
	t        *testing.T
	pages    map[string]PullResponse
	requests []string
}

func (s *pullServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(s.t, "Bearer test-token", r.Header.Get("Authorization"))

		cursor := r.URL.Query().Get("cursor")
		s.requests = append(s.requests, cursor)

		page, ok := s.pages[cursor]
		if !ok {
			page = PullResponse{Events: []RemoteEvent{}}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	}
}

func strPtr(s string) *string { return &s }

func TestPullWalksPagesAndAdvancesCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pageSize := 200
	fullPage := make([]RemoteEvent, pageSize)
	for i := range fullPage {
		fullPage[i] = RemoteEvent{
			ID:            fmt.Sprintf("evt-%d", i),
			AggregateType: AggregateDonor,
			AggregateID:   fmt.Sprintf("srv-%d", i),
			EventType:     "donor.updated",
			Payload:       json.RawMessage(`{"national_id":""}`),
			CreatedAt:     time.Now(),
		}
	}

	server := &pullServer{t: t, pages: map[string]PullResponse{
		"":   {Events: fullPage, NextCursor: strPtr("c1")},
		"c1": {Events: []RemoteEvent{}, NextCursor: strPtr("c2")},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	puller := store.newPuller(testClient(ts.URL), pageSize)
	outcome, err := puller.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, pageSize, outcome.Pulled)

	// Two fetches: the full page, then the empty page that ends the walk.
	require.Equal(t, []string{"", "c1"}, server.requests)

	cursor, err := store.cursor.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, cursor.PullCursor)
	require.Equal(t, "c2", *cursor.PullCursor)
	require.NotNil(t, cursor.LastPullAt)
}

func TestPullStopsOnShortPage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	server := &pullServer{t: t, pages: map[string]PullResponse{
		"": {Events: []RemoteEvent{{
			ID:            "evt-1",
			AggregateType: AggregateDonation,
			AggregateID:   "srv-d-1",
			EventType:     "donation.verified",
			Payload:       json.RawMessage(`{"status":"verified"}`),
			CreatedAt:     time.Now(),
		}}, NextCursor: strPtr("c1")},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	puller := store.newPuller(testClient(ts.URL), 200)
	outcome, err := puller.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Pulled)

	// A page shorter than the limit means the stream is exhausted; no
	// second fetch happens.
	require.Equal(t, []string{""}, server.requests)

	cursor, err := store.cursor.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "c1", *cursor.PullCursor)
}

func TestPullResumesFromStoredCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.cursor.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, store.cursor.Advance(ctx, "c9"))

	server := &pullServer{t: t, pages: map[string]PullResponse{}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	puller := store.newPuller(testClient(ts.URL), 200)
	_, err = puller.Pull(ctx)
	require.NoError(t, err)

	require.Equal(t, []string{"c9"}, server.requests)
}

func TestPullAppliesDonorEventsIdempotently(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	donor := &models.Donor{ID: uuid.New(), NationalID: "N-31", FullName: "Old Name"}
	require.NoError(t, store.donors.Create(ctx, donor))

	page := PullResponse{Events: []RemoteEvent{{
		ID:            "evt-1",
		AggregateType: AggregateDonor,
		AggregateID:   "srv-31",
		EventType:     "donor.updated",
		Payload:       json.RawMessage(`{"national_id":"N-31","full_name":"New Name","blood_type":"O+"}`),
		CreatedAt:     time.Now(),
	}}, NextCursor: strPtr("c1")}

	server := &pullServer{t: t, pages: map[string]PullResponse{"": page}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	puller := store.newPuller(testClient(ts.URL), 200)
	_, err := puller.Pull(ctx)
	require.NoError(t, err)

	updated, err := store.donors.GetByNationalID(ctx, "N-31")
	require.NoError(t, err)
	require.Equal(t, "srv-31", *updated.ServerID)
	require.Equal(t, "New Name", updated.FullName)
	require.Equal(t, "O+", updated.BloodType)
	firstSyncedAt := *updated.SyncedAt

	// Replay the same page from the beginning of the stream: applying the
	// same remote event again must change nothing.
	server.pages["c1"] = page
	_, err = puller.Pull(ctx)
	require.NoError(t, err)

	replayed, err := store.donors.GetByNationalID(ctx, "N-31")
	require.NoError(t, err)
	require.Equal(t, "srv-31", *replayed.ServerID)
	require.Equal(t, "New Name", replayed.FullName)
	require.WithinDuration(t, firstSyncedAt, *replayed.SyncedAt, time.Second)
}

func TestPullAppliesStatusChanges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	donor := &models.Donor{ID: uuid.New(), NationalID: "N-8", FullName: "x"}
	require.NoError(t, store.donors.Create(ctx, donor))

	donationServer := "srv-d-8"
	donation := &models.Donation{
		ID:        uuid.New(),
		DonorID:   donor.ID,
		VolumeML:  450,
		Status:    "recorded",
		DonatedAt: time.Now(),
		ServerID:  &donationServer,
	}
	require.NoError(t, store.donations.Create(ctx, donation))

	appointmentServer := "srv-a-8"
	appointment := &models.Appointment{
		ID:          uuid.New(),
		DonorID:     donor.ID,
		ScheduledAt: time.Now().Add(48 * time.Hour),
		Status:      "scheduled",
		ServerID:    &appointmentServer,
	}
	require.NoError(t, store.appointments.Create(ctx, appointment))

	server := &pullServer{t: t, pages: map[string]PullResponse{
		"": {Events: []RemoteEvent{
			{
				ID:            "evt-1",
				AggregateType: AggregateDonation,
				AggregateID:   donationServer,
				EventType:     "donation.verified",
				Payload:       json.RawMessage(`{"status":"verified"}`),
				CreatedAt:     time.Now(),
			},
			{
				ID:            "evt-2",
				AggregateType: AggregateAppointment,
				AggregateID:   appointmentServer,
				EventType:     "appointment.confirmed",
				Payload:       json.RawMessage(`{"status":"confirmed"}`),
				CreatedAt:     time.Now(),
			},
		}, NextCursor: strPtr("c1")},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	puller := store.newPuller(testClient(ts.URL), 200)
	outcome, err := puller.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, outcome.Pulled)

	verifiedDonation, err := store.donations.GetByID(ctx, donation.ID)
	require.NoError(t, err)
	require.Equal(t, "verified", verifiedDonation.Status)

	confirmedAppointment, err := store.appointments.GetByID(ctx, appointment.ID)
	require.NoError(t, err)
	require.Equal(t, "confirmed", confirmedAppointment.Status)
}

func TestPullSurfacesFailureWithoutAdvancing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	puller := store.newPuller(testClient(ts.URL), 200)
	outcome, err := puller.Pull(ctx)
	require.Error(t, err)
	require.Zero(t, outcome.Pulled)

	cursor, err := store.cursor.Get(ctx)
	require.NoError(t, err)
	require.Nil(t, cursor.PullCursor)
}

func TestPullSkipsUnknownAggregates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	server := &pullServer{t: t, pages: map[string]PullResponse{
		"": {Events: []RemoteEvent{{
			ID:            "evt-1",
			AggregateType: "campaign",
			AggregateID:   "srv-c-1",
			EventType:     "campaign.launched",
			Payload:       json.RawMessage(`{}`),
			CreatedAt:     time.Now(),
		}}, NextCursor: strPtr("c1")},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	puller := store.newPuller(testClient(ts.URL), 200)
	outcome, err := puller.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Pulled)
}
