// Package ratelimit bounds checkout attempts per (email, product). Counters
// are durable, monotonic and never reset in-process; a failed checkout still
// consumes a slot.
package ratelimit

import (
	"errors"
	"sync"

	"github.com/connorward/mycoshop/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the limiter.
type Repository interface {
	GetCounter(email, productID string) (*models.RateLimitCounter, error)
	SaveCounter(counter *models.RateLimitCounter) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a rate-limit repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetCounter(email, productID string) (*models.RateLimitCounter, error) {
	var c models.RateLimitCounter
	err := r.db.Where("email = ? AND product_id = ?", email, productID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) SaveCounter(counter *models.RateLimitCounter) error {
	return r.db.Save(counter).Error
}

// Limiter serializes counter read-modify-write cycles under its own mutex.
// The mutex is independent of the invoice lock; limiting always happens
// before any invoice mutation, never while holding it.
type Limiter struct {
	mu   sync.Mutex
	repo Repository
}

func NewLimiter(repo Repository) *Limiter {
	return &Limiter{repo: repo}
}

// CheckAndIncrement counts one attempt for (email, productID) and reports
// whether the limit is exceeded. The limit-th request is still allowed; the
// request after that is blocked without incrementing further.
func (l *Limiter) CheckAndIncrement(email, productID string, limit int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	counter, err := l.repo.GetCounter(email, productID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
		counter = &models.RateLimitCounter{Email: email, ProductID: productID}
	}

	if counter.RequestCount >= limit {
		log.Warnf("checkout rate limit exceeded: email=%s product_id=%s count=%d", email, productID, counter.RequestCount)
		return true, nil
	}

	counter.RequestCount++
	if err := l.repo.SaveCounter(counter); err != nil {
		return false, err
	}

	log.Infof("checkout rate limit: email=%s product_id=%s count=%d", email, productID, counter.RequestCount)
	return false, nil
}
