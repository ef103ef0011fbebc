package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/lifeline/agent/internal/models"
	"example.com/lifeline/agent/internal/repositories"
	"example.com/lifeline/agent/internal/sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type noopPusher struct{}

func (noopPusher) Push(ctx context.Context) (sync.PushOutcome, error) { return sync.PushOutcome{}, nil }

type noopPuller struct{}

func (noopPuller) Pull(ctx context.Context) (sync.PullOutcome, error) { return sync.PullOutcome{}, nil }

func newSyncRouter(t *testing.T) (*gin.Engine, *repositories.QueueRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	queue := repositories.NewQueueRepository(newHandlerDB(t), 5)
	engine := sync.NewEngine(queue, noopPusher{}, noopPuller{}, nil)

	router := gin.New()
	NewSyncHandler(queue, engine).RegisterRoutes(router)

	return router, queue
}

func TestGetStatusReturnsEngineSnapshot(t *testing.T) {
	router, _ := newSyncRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sync/status", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var status sync.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.False(t, status.CycleInProgress)
}

func TestRunNowIsAccepted(t *testing.T) {
	router, _ := newSyncRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync/run", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestListQueueFiltersByStatus(t *testing.T) {
	router, queue := newSyncRouter(t)
	ctx := context.Background()

	accepted, err := queue.Enqueue(ctx, "donor.upsert", map[string]string{"national_id": "N-1"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, queue.MarkAccepted(ctx, accepted, nil))

	rejected, err := queue.Enqueue(ctx, "donation.create", map[string]string{"local_ref": "r"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, queue.MarkRejected(ctx, rejected, "CONFLICT", "duplicate donation"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sync/queue?status="+models.EventStatusRejected, nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Events []models.QueueEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	require.Equal(t, rejected, body.Events[0].ClientEventID)
	require.Equal(t, "CONFLICT", *body.Events[0].ErrorCode)
	require.Equal(t, "duplicate donation", *body.Events[0].ErrorMessage)
}

func TestListQueueRejectsInvalidLimit(t *testing.T) {
	router, _ := newSyncRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sync/queue?limit=zero", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetryEventResetsRejectedEvent(t *testing.T) {
	router, queue := newSyncRouter(t)
	ctx := context.Background()

	id, err := queue.Enqueue(ctx, "donor.upsert", map[string]string{"national_id": "N-1"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, queue.MarkRejected(ctx, id, "VALIDATION", "missing blood type"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync/queue/"+id.String()+"/retry", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	event, err := queue.GetByClientEventID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.EventStatusPending, event.Status)
	require.Zero(t, event.RetryCount)
}

func TestRetryEventUnknownIDReturnsNotFound(t *testing.T) {
	router, _ := newSyncRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync/queue/"+uuid.NewString()+"/retry", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetryEventMalformedIDReturnsBadRequest(t *testing.T) {
	router, _ := newSyncRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync/queue/not-a-uuid/retry", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDismissEventRemovesIt(t *testing.T) {
	router, queue := newSyncRouter(t)
	ctx := context.Background()

	id, err := queue.Enqueue(ctx, "donor.upsert", map[string]string{"national_id": "N-1"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, queue.MarkRejected(ctx, id, "VALIDATION", "bad record"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/sync/queue/"+id.String(), nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	_, err = queue.GetByClientEventID(ctx, id)
	require.Error(t, err)
}
