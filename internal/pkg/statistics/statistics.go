// Package statistics builds the admin invoice report: state counts, sales for
// the current month and external API usage. Reports are cached in Redis so a
// dashboard polling the endpoint does not hammer the database.
package statistics

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/connorward/mycoshop/app/models"
	"github.com/connorward/mycoshop/internal/pkg/apiusage"
	"github.com/connorward/mycoshop/internal/pkg/order"
)

const (
	CacheKeyReport  = "statistics:invoices:report"
	CacheExpiration = time.Minute
)

// Cache is the subset of the cache package the service needs. Nil disables
// caching, which the tests use.
type Cache interface {
	Get(key string) (string, error)
	Set(key string, value interface{}, expiration time.Duration) error
}

// Report is the admin-facing invoice statistics snapshot.
type Report struct {
	GeneratedAt time.Time      `json:"generated_at"`
	StateCounts map[string]int `json:"state_counts"`
	Monthly     MonthlySales   `json:"monthly_sales"`
	BTCByRegion []RegionSales  `json:"btc_sales_by_region"`
	APIUsage    APIUsageReport `json:"api_usage"`
}

// MonthlySales covers fulfilled orders in the current calendar month.
type MonthlySales struct {
	Month     string         `json:"month"`
	Fulfilled int            `json:"fulfilled"`
	ByProduct map[string]int `json:"by_product"`
}

// RegionSales groups BTC-rail sales by buyer address.
type RegionSales struct {
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Orders     int     `json:"orders"`
	TaxRate    float64 `json:"tax_rate"`
}

// APIUsageReport lists this month's daily call counts per external API.
type APIUsageReport map[string][]DailyUsage

type DailyUsage struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Service assembles reports from the invoice and usage repositories.
type Service struct {
	invoices order.Repository
	usage    apiusage.Repository
	cache    Cache
	now      func() time.Time
}

func NewService(invoices order.Repository, usage apiusage.Repository, cache Cache) *Service {
	return &Service{invoices: invoices, usage: usage, cache: cache, now: time.Now}
}

// Report returns the cached snapshot when fresh, otherwise rebuilds it.
func (s *Service) Report() (*Report, error) {
	if s.cache != nil {
		if val, err := s.cache.Get(CacheKeyReport); err == nil && val != "" {
			var cached Report
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return &cached, nil
			}
			log.Warnf("discarding unreadable statistics cache entry")
		}
	}

	report, err := s.build()
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(report); err == nil {
			if err := s.cache.Set(CacheKeyReport, string(payload), CacheExpiration); err != nil {
				log.Warnf("failed to cache statistics report: %v", err)
			}
		}
	}
	return report, nil
}

func (s *Service) build() (*Report, error) {
	invoices, err := s.invoices.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	now := s.now()
	month := now.Format("2006-01")
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	report := &Report{
		GeneratedAt: now,
		StateCounts: make(map[string]int),
		Monthly:     MonthlySales{Month: month, ByProduct: make(map[string]int)},
	}

	regions := make(map[string]*RegionSales)
	for _, inv := range invoices {
		report.StateCounts[inv.OrderState]++

		if inv.OrderState == string(order.StateFulfilled) &&
			inv.FulfillmentTime != nil && !inv.FulfillmentTime.Before(monthStart) {
			report.Monthly.Fulfilled++
			report.Monthly.ByProduct[inv.ProductID]++
		}

		if inv.PaymentType == models.PaymentTypeBTC && paidState(inv.OrderState) {
			key := inv.BtcpayCity + "|" + inv.BtcpayState + "|" + inv.BtcpayPostalCode + "|" + inv.BtcpayCountry
			r, ok := regions[key]
			if !ok {
				r = &RegionSales{
					City:       inv.BtcpayCity,
					State:      inv.BtcpayState,
					PostalCode: inv.BtcpayPostalCode,
					Country:    inv.BtcpayCountry,
					TaxRate:    inv.BtcpaySalesTax,
				}
				regions[key] = r
			}
			r.Orders++
		}
	}

	report.BTCByRegion = make([]RegionSales, 0, len(regions))
	for _, r := range regions {
		report.BTCByRegion = append(report.BTCByRegion, *r)
	}
	sort.Slice(report.BTCByRegion, func(i, j int) bool {
		a, b := report.BTCByRegion[i], report.BTCByRegion[j]
		if a.Orders != b.Orders {
			return a.Orders > b.Orders
		}
		return a.PostalCode < b.PostalCode
	})

	report.APIUsage = make(APIUsageReport)
	since := monthStart.Format("2006-01-02")
	for _, apiType := range []string{models.APITypeAddrValidation, models.APITypeMailer} {
		counters, err := s.usage.ListCountersSince(since, apiType)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s usage: %w", apiType, err)
		}
		daily := make([]DailyUsage, 0, len(counters))
		for _, c := range counters {
			daily = append(daily, DailyUsage{Date: c.Date, Count: c.Count})
		}
		report.APIUsage[apiType] = daily
	}

	return report, nil
}

func paidState(state string) bool {
	return state == string(order.StateSettled) || state == string(order.StateFulfilled)
}
