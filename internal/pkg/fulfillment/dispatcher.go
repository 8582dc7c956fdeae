// Package fulfillment delivers purchased digital goods after settlement:
// per-order S3 artifact copies, presigned download links and the customer
// notification email.
package fulfillment

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/connorward/mycoshop/app/models"
	"github.com/connorward/mycoshop/internal/pkg/catalog"
	"github.com/connorward/mycoshop/internal/pkg/mail"
)

// Mailer sends one email. Satisfied by the SMTP mailer; faked in tests.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer is the production Mailer.
type SMTPMailer struct{}

func (SMTPMailer) Send(to, subject, body string) error {
	return mail.SendMail(to, subject, body)
}

// Linker produces download links for an order. Satisfied by *S3Client.
type Linker interface {
	CreatePresignedURLs(ctx context.Context, email, orderID string, product *catalog.Product) ([]string, error)
}

// UsageMeter counts mailer calls against the external API quota.
type UsageMeter interface {
	Increment(apiType string) (int, bool, error)
}

// Dispatcher fulfills settled orders. Fulfillment failure is reported back
// to the lifecycle engine; it is never retried here.
type Dispatcher struct {
	products     *catalog.Catalog
	linker       Linker
	mailer       Mailer
	meter        UsageMeter
	supportEmail string
}

func NewDispatcher(products *catalog.Catalog, linker Linker, mailer Mailer, meter UsageMeter, supportEmail string) *Dispatcher {
	return &Dispatcher{
		products:     products,
		linker:       linker,
		mailer:       mailer,
		meter:        meter,
		supportEmail: supportEmail,
	}
}

// Fulfill generates delivery artifacts for a settled order and emails the
// customer. rail is only used for logging.
func (d *Dispatcher) Fulfill(ctx context.Context, email, orderID, productID, rail string) error {
	product := d.products.Find(productID)
	if product == nil {
		return fmt.Errorf("unknown product %q for email=%s order_id=%s", productID, email, orderID)
	}

	urls, err := d.linker.CreatePresignedURLs(ctx, email, orderID, product)
	if err != nil {
		return fmt.Errorf("failed to create download links: %w", err)
	}

	pdfLink, epubLink := ClassifyLinks(urls)

	log.Infof("fulfilling order for email=%s order_id=%s product_id=%s type=%s", email, orderID, productID, rail)

	msg := mail.FulfillmentEmail{
		ProductName:  product.Title,
		OrderID:      orderID,
		PDFLink:      pdfLink,
		EPUBLink:     epubLink,
		SupportEmail: d.supportEmail,
	}
	err = d.mailer.Send(email, msg.Subject(), msg.BodyHTML())

	if d.meter != nil {
		if count, milestone, merr := d.meter.Increment(models.APITypeMailer); merr == nil && milestone {
			log.Warnf("mailer API call count reached %d milestone", count)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to send fulfillment email to %s: %w", email, err)
	}

	log.Infof("sent fulfillment email to %s, type=%s", email, rail)
	return nil
}

// ClassifyLinks splits presigned URLs into the PDF and EPUB download links.
// Unrecognized file types are logged and skipped.
func ClassifyLinks(urls []string) (pdfLink, epubLink string) {
	for _, u := range urls {
		switch {
		case strings.Contains(u, ".pdf?"):
			pdfLink = u
		case strings.Contains(u, ".epub?"):
			epubLink = u
		default:
			log.Warnf("unsupported file type: %s", u)
		}
	}
	return pdfLink, epubLink
}
