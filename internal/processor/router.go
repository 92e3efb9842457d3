// Package processor turns a decoded job payload into calls on a provider
// adapter, reporting progress and log lines for the running job.
package processor

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
	"github.com/cuongbtq/invoice-notifier/internal/provider"
)

// Progress milestones reported by every processor
const (
	ProgressStarted  = 10
	ProgressResolved = 30
	ProgressCalled   = 90
	ProgressDone     = domain.ProgressMax
)

// Resolver returns the adapter registered under a provider name
type Resolver interface {
	Resolve(name string) (provider.Provider, error)
}

// Reporter records progress and log lines against the job being processed
type Reporter interface {
	Log(ctx context.Context, message string) error
	UpdateProgress(ctx context.Context, progress int) error
}

// Router dispatches a payload to the processor for its kind
type Router struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewRouter creates a router backed by resolver
func NewRouter(resolver Resolver, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		resolver: resolver,
		logger:   logger,
	}
}

// Route runs the processor matching the payload's kind and returns its result.
// Adapter errors are returned unchanged.
func (r *Router) Route(ctx context.Context, payload domain.Payload, rep Reporter) (any, error) {
	switch p := payload.(type) {
	case domain.FetchAccountData:
		return r.fetchAccountData(ctx, p, rep)
	case domain.FetchInvoice:
		return r.fetchInvoice(ctx, p, rep)
	case domain.PayInvoice:
		return r.payInvoice(ctx, p, rep)
	case domain.RejectInvoice:
		return r.rejectInvoice(ctx, p, rep)
	case nil:
		return nil, &domain.UnknownJobKindError{}
	default:
		return nil, &domain.UnknownJobKindError{Kind: payload.Kind()}
	}
}
