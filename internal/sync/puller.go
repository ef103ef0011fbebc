package sync

import (
	"context"
	"encoding/json"

	"example.com/lifeline/agent/internal/repositories"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// PullOutcome summarizes one walk of the inbound stream
type PullOutcome struct {
	Pulled int `json:"pulled"`
}

// Puller walks the remote event stream forward from the stored cursor,
// applying each event to the local projections
type Puller struct {
	cursor       *repositories.CursorRepository
	donors       *repositories.DonorRepository
	donations    *repositories.DonationRepository
	appointments *repositories.AppointmentRepository
	client       *Client
	pageSize     int
}

// NewPuller creates a new puller
func NewPuller(
	cursor *repositories.CursorRepository,
	donors *repositories.DonorRepository,
	donations *repositories.DonationRepository,
	appointments *repositories.AppointmentRepository,
	client *Client,
	pageSize int,
) *Puller {
	return &Puller{
		cursor:       cursor,
		donors:       donors,
		donations:    donations,
		appointments: appointments,
		client:       client,
		pageSize:     pageSize,
	}
}

// Pull consumes the inbound stream page by page until it is exhausted. A
// failed page halts the walk for this cycle; the error is returned so the
// orchestrator can surface it, but pages already applied stay applied and
// the cursor stays on the last durably completed page.
func (p *Puller) Pull(ctx context.Context) (PullOutcome, error) {
	cursor, err := p.cursor.Get(ctx)
	if err != nil {
		return PullOutcome{}, err
	}

	position := ""
	if cursor.PullCursor != nil {
		position = *cursor.PullCursor
	}

	var outcome PullOutcome
	for {
		page, err := p.client.PullEvents(ctx, position, p.pageSize)
		if err != nil {
			log.Warn().Err(err).Str("cursor", position).Msg("Pull halted")
			return outcome, err
		}
		if len(page.Events) == 0 {
			// Stream exhausted. Persist the continuation token if the server
			// moved it, so the next cycle resumes past any compacted range.
			if page.NextCursor != nil && *page.NextCursor != position {
				if err := p.cursor.Advance(ctx, *page.NextCursor); err != nil {
					return outcome, err
				}
			}
			break
		}

		for i := range page.Events {
			if err := p.apply(ctx, &page.Events[i]); err != nil {
				// Stop without advancing past this page so the event is
				// re-applied next cycle. Application is idempotent.
				log.Error().Err(err).
					Str("remote_event_id", page.Events[i].ID).
					Str("aggregate_type", page.Events[i].AggregateType).
					Msg("Failed to apply remote event")
				return outcome, err
			}
			outcome.Pulled++
		}

		if page.NextCursor == nil {
			break
		}
		position = *page.NextCursor
		if err := p.cursor.Advance(ctx, position); err != nil {
			return outcome, err
		}

		if len(page.Events) < p.pageSize {
			break
		}
	}

	if outcome.Pulled > 0 {
		log.Info().Int("pulled", outcome.Pulled).Msg("Pull completed")
	}

	return outcome, nil
}

// remoteDonorPayload carries the donor fields the server publishes on its
// stream
type remoteDonorPayload struct {
	NationalID string  `json:"national_id"`
	FullName   *string `json:"full_name"`
	Phone      *string `json:"phone"`
	BloodType  *string `json:"blood_type"`
}

// remoteStatusPayload carries a status change for a donation or appointment
type remoteStatusPayload struct {
	Status string `json:"status"`
}

// apply updates the local projection for one remote event. Server wins on
// the fields it carries; every branch is conditioned so that re-applying the
// same event is a no-op.
func (p *Puller) apply(ctx context.Context, event *RemoteEvent) error {
	switch event.AggregateType {
	case AggregateDonor:
		var payload remoteDonorPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return errors.Wrap(err, "failed to decode remote donor event")
		}

		if payload.NationalID != "" {
			// Attach the server identity to a locally-known donor that has
			// not been acknowledged yet. No-op when already claimed.
			if _, err := p.donors.ClaimServerID(ctx, payload.NationalID, event.AggregateID); err != nil {
				return err
			}
		}

		fields := map[string]interface{}{}
		if payload.FullName != nil {
			fields["full_name"] = *payload.FullName
		}
		if payload.Phone != nil {
			fields["phone"] = *payload.Phone
		}
		if payload.BloodType != nil {
			fields["blood_type"] = *payload.BloodType
		}
		return p.donors.UpdateFromRemote(ctx, event.AggregateID, fields)

	case AggregateDonation:
		var payload remoteStatusPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return errors.Wrap(err, "failed to decode remote donation event")
		}
		if payload.Status == "" {
			return nil
		}
		return p.donations.UpdateStatusByServerID(ctx, event.AggregateID, payload.Status)

	case AggregateAppointment:
		var payload remoteStatusPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return errors.Wrap(err, "failed to decode remote appointment event")
		}
		if payload.Status == "" {
			return nil
		}
		return p.appointments.UpdateStatusByServerID(ctx, event.AggregateID, payload.Status)
	}

	// Unknown aggregates are skipped, not fatal: the remote contract may
	// grow ahead of the app.
	log.Debug().Str("aggregate_type", event.AggregateType).Msg("Skipping remote event for unknown aggregate")
	return nil
}
