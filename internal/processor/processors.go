package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
	"github.com/cuongbtq/invoice-notifier/internal/provider"
)

// operation describes one processor run around a single adapter call
type operation[T any] struct {
	kind    domain.Kind
	target  domain.Target
	start   string
	calling string
	failure string
	call    func(ctx context.Context, p provider.Provider) (T, error)
	outcome func(T) string
}

// execute reports progress at fixed milestones around the adapter call.
// Progress reaches 100 only on success.
func execute[T any](ctx context.Context, r *Router, rep Reporter, op operation[T]) (T, error) {
	var zero T

	logger := r.logger.With(
		slog.String("job_type", string(op.kind)),
		slog.String("provider", op.target.Provider),
	)

	fail := func(err error) (T, error) {
		logger.Error("Job processor failed",
			slog.String("error", err.Error()),
		)
		if logErr := rep.Log(ctx, fmt.Sprintf("%s: %v", op.failure, err)); logErr != nil {
			logger.Warn("Failed to append job log",
				slog.String("error", logErr.Error()),
			)
		}
		return zero, err
	}

	if err := report(ctx, rep, op.start, ProgressStarted); err != nil {
		return zero, err
	}

	adapter, err := r.resolver.Resolve(op.target.Provider)
	if err != nil {
		return fail(err)
	}

	if err := report(ctx, rep, fmt.Sprintf("Provider %s initialized", op.target.Provider), ProgressResolved); err != nil {
		return zero, err
	}

	if err := rep.Log(ctx, op.calling); err != nil {
		return zero, fmt.Errorf("failed to append job log: %w", err)
	}

	result, err := op.call(ctx, adapter)
	if err != nil {
		return fail(err)
	}

	if err := rep.UpdateProgress(ctx, ProgressCalled); err != nil {
		return zero, fmt.Errorf("failed to update job progress: %w", err)
	}

	if err := report(ctx, rep, op.outcome(result), ProgressDone); err != nil {
		return zero, err
	}

	logger.Debug("Job processor finished")

	return result, nil
}

// report appends a log line, then advances progress
func report(ctx context.Context, rep Reporter, message string, progress int) error {
	if err := rep.Log(ctx, message); err != nil {
		return fmt.Errorf("failed to append job log: %w", err)
	}
	if err := rep.UpdateProgress(ctx, progress); err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

func (r *Router) fetchAccountData(ctx context.Context, p domain.FetchAccountData, rep Reporter) (*domain.AccountBalance, error) {
	return execute(ctx, r, rep, operation[*domain.AccountBalance]{
		kind:    p.Kind(),
		target:  p.Account,
		start:   fmt.Sprintf("Starting fetch-account-data for contract: %s", p.Account.AccountContract),
		calling: fmt.Sprintf("Fetching account balance from %s", p.Account.Provider),
		failure: "Error fetching account data",
		call: func(ctx context.Context, adapter provider.Provider) (*domain.AccountBalance, error) {
			return adapter.FetchAccountData(ctx, p.Account.AccountContract)
		},
		outcome: func(res *domain.AccountBalance) string {
			return fmt.Sprintf("Account data fetched successfully. Balance: %v", res.Balance)
		},
	})
}

func (r *Router) fetchInvoice(ctx context.Context, p domain.FetchInvoice, rep Reporter) (*domain.InvoiceList, error) {
	status := p.Status
	if status == "" {
		status = domain.InvoiceStatusUnpaid
	}

	return execute(ctx, r, rep, operation[*domain.InvoiceList]{
		kind:    p.Kind(),
		target:  p.Account,
		start:   fmt.Sprintf("Starting fetch-invoice for contract: %s, status: %s", p.Account.AccountContract, status),
		calling: fmt.Sprintf("Fetching %s invoices from %s", status, p.Account.Provider),
		failure: "Error fetching invoices",
		call: func(ctx context.Context, adapter provider.Provider) (*domain.InvoiceList, error) {
			return adapter.FetchInvoices(ctx, p.Account.AccountContract, status)
		},
		outcome: func(res *domain.InvoiceList) string {
			return fmt.Sprintf("Invoices fetched successfully. Count: %d", res.Count)
		},
	})
}

func (r *Router) payInvoice(ctx context.Context, p domain.PayInvoice, rep Reporter) (*domain.PaymentResult, error) {
	return execute(ctx, r, rep, operation[*domain.PaymentResult]{
		kind:    p.Kind(),
		target:  p.Account,
		start:   fmt.Sprintf("Starting pay-invoice for invoice: %s, amount: %v", p.InvoiceNumber, p.Amount),
		calling: fmt.Sprintf("Processing payment for invoice %s", p.InvoiceNumber),
		failure: "Error paying invoice",
		call: func(ctx context.Context, adapter provider.Provider) (*domain.PaymentResult, error) {
			return adapter.PayInvoice(ctx, p.Account.AccountContract, p.InvoiceNumber, p.Amount)
		},
		outcome: func(res *domain.PaymentResult) string {
			return fmt.Sprintf("Payment %s. Transaction ID: %s", outcomeWord(res.Success), res.TransactionID)
		},
	})
}

func (r *Router) rejectInvoice(ctx context.Context, p domain.RejectInvoice, rep Reporter) (*domain.RejectionResult, error) {
	return execute(ctx, r, rep, operation[*domain.RejectionResult]{
		kind:    p.Kind(),
		target:  p.Account,
		start:   fmt.Sprintf("Starting reject-invoice for invoice: %s, reason: %s", p.InvoiceNumber, p.Reason),
		calling: fmt.Sprintf("Rejecting invoice %s", p.InvoiceNumber),
		failure: "Error rejecting invoice",
		call: func(ctx context.Context, adapter provider.Provider) (*domain.RejectionResult, error) {
			return adapter.RejectInvoice(ctx, p.Account.AccountContract, p.InvoiceNumber, p.Reason)
		},
		outcome: func(res *domain.RejectionResult) string {
			return fmt.Sprintf("Invoice rejection %s", outcomeWord(res.Success))
		},
	})
}

func outcomeWord(success bool) string {
	if success {
		return "successful"
	}
	return "failed"
}
