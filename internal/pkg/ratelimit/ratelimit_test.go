package ratelimit

import (
	"sync"
	"testing"

	"github.com/connorward/mycoshop/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memoryRepository struct {
	mu       sync.Mutex
	counters map[string]*models.RateLimitCounter
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{counters: make(map[string]*models.RateLimitCounter)}
}

func (m *memoryRepository) GetCounter(email, productID string) (*models.RateLimitCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[email+"|"+productID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memoryRepository) SaveCounter(counter *models.RateLimitCounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *counter
	m.counters[counter.Email+"|"+counter.ProductID] = &copied
	return nil
}

func TestLimitBoundary(t *testing.T) {
	l := NewLimiter(newMemoryRepository())
	const limit = 3

	// Requests 1..limit are allowed.
	for i := 0; i < limit; i++ {
		exceeded, err := l.CheckAndIncrement("a@example.com", "fundamentals", limit)
		require.NoError(t, err)
		assert.False(t, exceeded, "request %d should be allowed", i+1)
	}

	// Request limit+1 is blocked, and stays blocked.
	for i := 0; i < 2; i++ {
		exceeded, err := l.CheckAndIncrement("a@example.com", "fundamentals", limit)
		require.NoError(t, err)
		assert.True(t, exceeded)
	}
}

func TestCounterIsNeverDecremented(t *testing.T) {
	repo := newMemoryRepository()
	l := NewLimiter(repo)

	for i := 0; i < 5; i++ {
		_, err := l.CheckAndIncrement("a@example.com", "fundamentals", 3)
		require.NoError(t, err)
	}

	c, err := repo.GetCounter("a@example.com", "fundamentals")
	require.NoError(t, err)
	assert.Equal(t, 3, c.RequestCount)
}

func TestKeysAreIndependent(t *testing.T) {
	l := NewLimiter(newMemoryRepository())

	exceeded, err := l.CheckAndIncrement("a@example.com", "fundamentals", 1)
	require.NoError(t, err)
	assert.False(t, exceeded)

	exceeded, err = l.CheckAndIncrement("b@example.com", "fundamentals", 1)
	require.NoError(t, err)
	assert.False(t, exceeded)

	exceeded, err = l.CheckAndIncrement("a@example.com", "fundamentals", 1)
	require.NoError(t, err)
	assert.True(t, exceeded)
}

func TestConcurrentAttemptsNeverExceedLimit(t *testing.T) {
	repo := newMemoryRepository()
	l := NewLimiter(repo)
	const limit = 10

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.CheckAndIncrement("a@example.com", "fundamentals", limit)
		}()
	}
	wg.Wait()

	c, err := repo.GetCounter("a@example.com", "fundamentals")
	require.NoError(t, err)
	assert.Equal(t, limit, c.RequestCount)
}
