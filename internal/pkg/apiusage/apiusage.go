// Package apiusage tracks per-day call counts against external APIs so
// operators notice quota burn. Counts feed milestone warnings only; they are
// not billing-accurate.
package apiusage

import (
	"errors"
	"sync"
	"time"

	"github.com/connorward/mycoshop/app/models"
	"gorm.io/gorm"
)

// MilestoneStep is the fixed count interval that triggers an operator
// notification when crossed exactly.
const MilestoneStep = 500

// Repository provides DB operations used by the meter.
type Repository interface {
	GetCounter(date, apiType string) (*models.APIUsageCounter, error)
	SaveCounter(counter *models.APIUsageCounter) error
	ListCountersSince(date, apiType string) ([]models.APIUsageCounter, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an api-usage repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetCounter(date, apiType string) (*models.APIUsageCounter, error) {
	var c models.APIUsageCounter
	err := r.db.Where("date = ? AND api_type = ?", date, apiType).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) SaveCounter(counter *models.APIUsageCounter) error {
	return r.db.Save(counter).Error
}

func (r *gormRepository) ListCountersSince(date, apiType string) ([]models.APIUsageCounter, error) {
	var counters []models.APIUsageCounter
	err := r.db.Where("date >= ? AND api_type = ?", date, apiType).
		Order("date ASC").Find(&counters).Error
	return counters, err
}

// Meter increments usage counters under its own mutex, independent of the
// invoice lock.
type Meter struct {
	mu   sync.Mutex
	repo Repository
	now  func() time.Time
}

func NewMeter(repo Repository) *Meter {
	return &Meter{repo: repo, now: time.Now}
}

// Increment counts one call of apiType for today and returns the new count
// plus whether it just crossed a milestone boundary.
func (m *Meter) Increment(apiType string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := m.now().Format("2006-01-02")
	counter, err := m.repo.GetCounter(today, apiType)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, err
		}
		counter = &models.APIUsageCounter{Date: today, APIType: apiType}
	}

	counter.Count++
	if err := m.repo.SaveCounter(counter); err != nil {
		return 0, false, err
	}

	milestone := counter.Count > 0 && counter.Count%MilestoneStep == 0
	return counter.Count, milestone, nil
}
