package sync

import (
	"testing"
	"time"

	"example.com/lifeline/agent/internal/models"
	"example.com/lifeline/agent/internal/repositories"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testStore bundles a fresh in-memory store with its repositories
type testStore struct {
	db           *gorm.DB
	queue        *repositories.QueueRepository
	cursor       *repositories.CursorRepository
	donors       *repositories.DonorRepository
	donations    *repositories.DonationRepository
	appointments *repositories.AppointmentRepository
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.SetupModels(db))

	return &testStore{
		db:           db,
		queue:        repositories.NewQueueRepository(db, 5),
		cursor:       repositories.NewCursorRepository(db),
		donors:       repositories.NewDonorRepository(db),
		donations:    repositories.NewDonationRepository(db),
		appointments: repositories.NewAppointmentRepository(db),
	}
}

func (s *testStore) newPusher(client *Client, batchSize int) *Pusher {
	return NewPusher(s.queue, s.cursor, s.donors, s.donations, s.appointments, client, batchSize)
}

func (s *testStore) newPuller(client *Client, pageSize int) *Puller {
	return NewPuller(s.cursor, s.donors, s.donations, s.appointments, client, pageSize)
}

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second, StaticToken("test-token"))
}
