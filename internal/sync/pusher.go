package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"example.com/lifeline/agent/internal/models"
	"example.com/lifeline/agent/internal/repositories"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrorCodeNetwork tags rejections caused by a transport-level failure, as
// opposed to a verdict or status returned by the remote system.
const ErrorCodeNetwork = "NETWORK"

// PushOutcome summarizes one drain of the outbox
type PushOutcome struct {
	Pushed int `json:"pushed"`
	Errors int `json:"errors"`
}

// serverAck is the portion of the opaque server response the reconciliation
// step consumes: the server-assigned identifier for the accepted entity.
type serverAck struct {
	ID string `json:"id"`
}

// Pusher drains the outbox in dependency order and applies the per-event
// verdicts back onto the queue and the local projections
type Pusher struct {
	queue        *repositories.QueueRepository
	cursor       *repositories.CursorRepository
	donors       *repositories.DonorRepository
	donations    *repositories.DonationRepository
	appointments *repositories.AppointmentRepository
	client       *Client
	batchSize    int
}

// NewPusher creates a new pusher
func NewPusher(
	queue *repositories.QueueRepository,
	cursor *repositories.CursorRepository,
	donors *repositories.DonorRepository,
	donations *repositories.DonationRepository,
	appointments *repositories.AppointmentRepository,
	client *Client,
	batchSize int,
) *Pusher {
	return &Pusher{
		queue:        queue,
		cursor:       cursor,
		donors:       donors,
		donations:    donations,
		appointments: appointments,
		client:       client,
		batchSize:    batchSize,
	}
}

// Push delivers one batch of eligible events. It always terminates with every
// selected event resolved: accepted, duplicate, or rejected with a scheduled
// retry. A transport failure rejects the whole batch and returns a zero
// pushed count rather than an error.
func (p *Pusher) Push(ctx context.Context) (PushOutcome, error) {
	events, err := p.queue.FetchPending(ctx, p.batchSize)
	if err != nil {
		return PushOutcome{}, err
	}
	if len(events) == 0 {
		return PushOutcome{}, nil
	}

	// Entity-creating events go first so the remote side never sees a
	// reference before the entity it points at. The sort is stable, so ties
	// keep their insertion order.
	sort.SliceStable(events, func(i, j int) bool {
		return orderingRank(events[i].EventType) < orderingRank(events[j].EventType)
	})

	cursor, err := p.cursor.Get(ctx)
	if err != nil {
		return PushOutcome{}, err
	}

	// Record that an attempt began before anything leaves the device, so a
	// crash mid-flight cannot resurface these rows as untouched PENDING.
	batch := events[:0]
	for i := range events {
		if err := p.queue.MarkPushing(ctx, events[i].ClientEventID); err != nil {
			log.Error().Err(err).
				Str("client_event_id", events[i].ClientEventID.String()).
				Msg("Failed to mark event as pushing, leaving it for the next cycle")
			continue
		}
		batch = append(batch, events[i])
	}
	if len(batch) == 0 {
		return PushOutcome{}, nil
	}

	request := PushRequest{
		DeviceID: cursor.DeviceID,
		Events:   make([]PushEvent, 0, len(batch)),
	}
	for i := range batch {
		occurredAt := batch[i].OccurredAt
		request.Events = append(request.Events, PushEvent{
			ClientEventID: batch[i].ClientEventID,
			Type:          batch[i].EventType,
			Payload:       json.RawMessage(batch[i].Payload),
			OccurredAt:    &occurredAt,
		})
	}

	response, err := p.client.PushEvents(ctx, request)
	if err != nil {
		code := ErrorCodeNetwork
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			code = fmt.Sprintf("HTTP_%d", statusErr.StatusCode)
		}

		log.Warn().Err(err).Int("batch", len(batch)).Str("error_code", code).
			Msg("Push transport failure, rejecting whole batch for retry")

		for i := range batch {
			if markErr := p.queue.MarkRejected(ctx, batch[i].ClientEventID, code, err.Error()); markErr != nil {
				log.Error().Err(markErr).
					Str("client_event_id", batch[i].ClientEventID.String()).
					Msg("Failed to record batch rejection")
			}
		}
		return PushOutcome{Pushed: 0, Errors: len(batch)}, nil
	}

	verdicts := make(map[string]PushResult, len(response.Results))
	for _, result := range response.Results {
		verdicts[result.ClientEventID.String()] = result
	}

	var outcome PushOutcome
	for i := range batch {
		event := &batch[i]
		result, ok := verdicts[event.ClientEventID.String()]
		if !ok {
			// The server answered but skipped this event; treat it like a
			// retryable rejection.
			if err := p.queue.MarkRejected(ctx, event.ClientEventID, "NO_VERDICT", "server response carried no verdict for this event"); err != nil {
				log.Error().Err(err).Str("client_event_id", event.ClientEventID.String()).Msg("Failed to record missing verdict")
			}
			outcome.Errors++
			continue
		}

		switch result.Status {
		case VerdictAccepted:
			if err := p.queue.MarkAccepted(ctx, event.ClientEventID, []byte(result.Response)); err != nil {
				log.Error().Err(err).Str("client_event_id", event.ClientEventID.String()).Msg("Failed to mark event accepted")
				outcome.Errors++
				continue
			}
			if err := p.reconcile(ctx, event, result.Response); err != nil {
				log.Warn().Err(err).
					Str("client_event_id", event.ClientEventID.String()).
					Str("event_type", event.EventType).
					Msg("Failed to reconcile local projection after acceptance")
			}
			outcome.Pushed++

		case VerdictDuplicate:
			// Idempotent re-delivery recognized by the remote side. The
			// original delivery already reconciled the projection.
			if err := p.queue.MarkDuplicate(ctx, event.ClientEventID); err != nil {
				log.Error().Err(err).Str("client_event_id", event.ClientEventID.String()).Msg("Failed to mark event duplicate")
				outcome.Errors++
				continue
			}
			outcome.Pushed++

		default:
			if err := p.queue.MarkRejected(ctx, event.ClientEventID, result.ErrorCode, result.ErrorMessage); err != nil {
				log.Error().Err(err).Str("client_event_id", event.ClientEventID.String()).Msg("Failed to mark event rejected")
			}
			outcome.Errors++
		}
	}

	log.Info().Int("pushed", outcome.Pushed).Int("errors", outcome.Errors).Msg("Push batch completed")

	return outcome, nil
}

// reconcile patches the local projection for an accepted event, using only
// the fields present in the original payload. The local row may have been
// created, modified and queried independently while the push was in flight,
// so it is located by its durable key, never by in-memory state.
func (p *Pusher) reconcile(ctx context.Context, event *models.QueueEvent, response json.RawMessage) error {
	var ack serverAck
	if len(response) > 0 {
		if err := json.Unmarshal(response, &ack); err != nil {
			return errors.Wrap(err, "failed to decode server response")
		}
	}
	if ack.ID == "" {
		// Nothing to patch; the server acknowledged without assigning ids.
		return nil
	}

	switch event.EventType {
	case EventDonorUpsert:
		var payload DonorUpsertPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return errors.Wrap(err, "failed to decode donor payload")
		}
		return p.donors.MarkSynced(ctx, payload.NationalID, ack.ID)

	case EventDonationCreate:
		var payload DonationCreatePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return errors.Wrap(err, "failed to decode donation payload")
		}
		return p.donations.MarkSynced(ctx, payload.LocalRef, ack.ID)

	case EventAppointmentCreate:
		var payload AppointmentCreatePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return errors.Wrap(err, "failed to decode appointment payload")
		}
		return p.appointments.MarkSynced(ctx, payload.LocalRef, ack.ID)
	}

	return errors.Errorf("no reconciliation for event type %s", event.EventType)
}
