package apiusage

import (
	"sync"
	"testing"
	"time"

	"github.com/connorward/mycoshop/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memoryRepository struct {
	mu       sync.Mutex
	counters map[string]*models.APIUsageCounter
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{counters: make(map[string]*models.APIUsageCounter)}
}

func (m *memoryRepository) GetCounter(date, apiType string) (*models.APIUsageCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[date+"|"+apiType]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memoryRepository) SaveCounter(counter *models.APIUsageCounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *counter
	m.counters[counter.Date+"|"+counter.APIType] = &copied
	return nil
}

func (m *memoryRepository) ListCountersSince(date, apiType string) ([]models.APIUsageCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.APIUsageCounter
	for _, c := range m.counters {
		if c.APIType == apiType && c.Date >= date {
			out = append(out, *c)
		}
	}
	return out, nil
}

func TestMilestoneBoundary(t *testing.T) {
	repo := newMemoryRepository()
	meter := NewMeter(repo)

	// Seed the counter just below the boundary.
	require.NoError(t, repo.SaveCounter(&models.APIUsageCounter{
		Date:    time.Now().Format("2006-01-02"),
		APIType: models.APITypeMailer,
		Count:   498,
	}))

	count, milestone, err := meter.Increment(models.APITypeMailer)
	require.NoError(t, err)
	assert.Equal(t, 499, count)
	assert.False(t, milestone)

	count, milestone, err = meter.Increment(models.APITypeMailer)
	require.NoError(t, err)
	assert.Equal(t, 500, count)
	assert.True(t, milestone)

	count, milestone, err = meter.Increment(models.APITypeMailer)
	require.NoError(t, err)
	assert.Equal(t, 501, count)
	assert.False(t, milestone)
}

func TestCountersArePerDay(t *testing.T) {
	repo := newMemoryRepository()
	meter := NewMeter(repo)

	day := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	meter.now = func() time.Time { return day }

	count, _, err := meter.Increment(models.APITypeAddrValidation)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	meter.now = func() time.Time { return day.AddDate(0, 0, 1) }
	count, _, err = meter.Increment(models.APITypeAddrValidation)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "next day starts a fresh counter")
}

func TestCountersArePerAPIType(t *testing.T) {
	meter := NewMeter(newMemoryRepository())

	count, _, err := meter.Increment(models.APITypeAddrValidation)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, _, err = meter.Increment(models.APITypeMailer)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
