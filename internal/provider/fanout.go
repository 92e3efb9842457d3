package provider

import (
	"context"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
	"golang.org/x/sync/errgroup"
)

type invoiceQuery func(ctx context.Context, accountContract string, status domain.InvoiceStatus) (*domain.InvoiceList, error)

// fetchAllInvoices runs the unpaid and paid queries concurrently and
// concatenates them, unpaid first. Either failure aborts the whole result.
func fetchAllInvoices(ctx context.Context, accountContract string, query invoiceQuery) (*domain.InvoiceList, error) {
	var unpaid, paid *domain.InvoiceList

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := query(gctx, accountContract, domain.InvoiceStatusUnpaid)
		unpaid = res
		return err
	})
	g.Go(func() error {
		res, err := query(gctx, accountContract, domain.InvoiceStatusPaid)
		paid = res
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	invoices := make([]domain.Invoice, 0, len(unpaid.Invoices)+len(paid.Invoices))
	invoices = append(invoices, unpaid.Invoices...)
	invoices = append(invoices, paid.Invoices...)

	return &domain.InvoiceList{
		Invoices: invoices,
		Count:    unpaid.Count + paid.Count,
	}, nil
}
