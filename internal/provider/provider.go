// Package provider holds the utility-provider adapters, the shared HTTP client
// they use, and the registry that resolves a provider name to a cached adapter.
package provider

import (
	"context"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
)

// Provider is the capability set every utility provider adapter implements.
type Provider interface {
	// Name returns the normalized provider id
	Name() string

	// Authenticate returns a cached credential or logs in to obtain a new one
	Authenticate(ctx context.Context) (Credential, error)

	FetchAccountData(ctx context.Context, accountContract string) (*domain.AccountBalance, error)

	// FetchInvoices lists invoices; InvoiceStatusAll combines the unpaid and paid queries
	FetchInvoices(ctx context.Context, accountContract string, status domain.InvoiceStatus) (*domain.InvoiceList, error)

	// PayInvoice fails with a NotImplementedError when the provider has no payment endpoint
	PayInvoice(ctx context.Context, accountContract, invoiceNumber string, amount float64) (*domain.PaymentResult, error)

	// RejectInvoice fails with a NotImplementedError when the provider has no dispute endpoint
	RejectInvoice(ctx context.Context, accountContract, invoiceNumber, reason string) (*domain.RejectionResult, error)
}

// Settings holds one provider's base URL and credentials
type Settings struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string
}

// Capabilities named in NotImplementedError
const (
	CapabilityPayInvoice    = "pay-invoice"
	CapabilityRejectInvoice = "reject-invoice"
)

// isoMillis formats instants the way the job results expose them
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

func formatInstant(t time.Time) string {
	return t.UTC().Format(isoMillis)
}
