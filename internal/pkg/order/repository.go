package order

import (
	"github.com/connorward/mycoshop/app/models"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the lifecycle engine. Not-found
// lookups return gorm.ErrRecordNotFound.
type Repository interface {
	GetByEmail(email string) (*models.Invoice, error)
	GetByBtcpayInvoiceID(invoiceID string) (*models.Invoice, error)
	GetByStripeSessionID(sessionID string) (*models.Invoice, error)
	Create(invoice *models.Invoice) error
	Save(invoice *models.Invoice) error
	Delete(email string) error
	ListAll() ([]models.Invoice, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an invoice repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetByEmail(email string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.Where("email = ?", email).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *gormRepository) GetByBtcpayInvoiceID(invoiceID string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.Where("btcpay_invoice_id = ?", invoiceID).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *gormRepository) GetByStripeSessionID(sessionID string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.Where("stripe_session_id = ?", sessionID).First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *gormRepository) Create(invoice *models.Invoice) error {
	return r.db.Create(invoice).Error
}

func (r *gormRepository) Save(invoice *models.Invoice) error {
	return r.db.Save(invoice).Error
}

func (r *gormRepository) Delete(email string) error {
	return r.db.Where("email = ?", email).Delete(&models.Invoice{}).Error
}

func (r *gormRepository) ListAll() ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.Find(&invoices).Error
	return invoices, err
}
