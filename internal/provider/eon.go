package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
)

const (
	// EONName is the registry id of the E.ON adapter
	EONName = "eon"

	eonDefaultBaseURL   = "https://api2.eon.ro"
	eonDefaultUserAgent = "Mozilla/5.0 (compatible; InvoiceNotifier/1.0)"
	eonSubscriptionKey  = "Ocp-Apim-Subscription-Key"
	eonFallbackTTL      = 15 * time.Minute
)

type eonAuthResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
	UUID        string `json:"uuid"`
	LegacyID    string `json:"legacyId"`
	Scope       string `json:"scope"`
}

// EON talks to the E.ON Romania customer API with a bearer token
type EON struct {
	settings Settings
	client   *apiClient
	creds    *credentialCache
	now      func() time.Time
	logger   *slog.Logger
}

// NewEON creates the E.ON adapter
func NewEON(settings Settings, cfg ClientConfig, logger *slog.Logger) (*EON, error) {
	if settings.BaseURL == "" {
		settings.BaseURL = eonDefaultBaseURL
	}
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")

	if _, err := url.Parse(settings.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid eon base url: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	client := newAPIClient(EONName, cfg, eonDefaultUserAgent, logger)

	return &EON{
		settings: settings,
		client:   client,
		creds:    newCredentialCache(now),
		now:      now,
		logger:   client.logger,
	}, nil
}

func (p *EON) Name() string { return EONName }

// Authenticate logs in and caches the access token for 90% of its declared lifetime
func (p *EON) Authenticate(ctx context.Context) (Credential, error) {
	return p.creds.get(ctx, p.login)
}

func (p *EON) login(ctx context.Context) (Credential, error) {
	body, err := json.Marshal(map[string]any{
		"username":   p.settings.Username,
		"password":   p.settings.Password,
		"rememberMe": false,
	})
	if err != nil {
		return Credential{}, fmt.Errorf("failed to marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.settings.BaseURL+"/users/v1/userauth/login", bytes.NewReader(body))
	if err != nil {
		return Credential{}, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(eonSubscriptionKey, p.settings.APIKey)

	resp, err := p.client.do(ctx, req)
	if err != nil {
		return Credential{}, &AuthenticationError{Provider: EONName, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Credential{}, &AuthenticationError{
			Provider:   EONName,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	var auth eonAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return Credential{}, &AuthenticationError{Provider: EONName, Message: "malformed login response: " + err.Error()}
	}
	if auth.AccessToken == "" {
		return Credential{}, &AuthenticationError{Provider: EONName, Message: "login response has no access token"}
	}

	ttl := safeTTL(time.Duration(auth.ExpiresIn)*time.Second, eonFallbackTTL)

	p.logger.Info("Authenticated with provider",
		slog.Duration("token_ttl", ttl),
	)

	return Credential{Token: auth.AccessToken, ExpiresAt: p.now().Add(ttl)}, nil
}

func (p *EON) authorizedHeader(ctx context.Context) (http.Header, error) {
	cred, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set(eonSubscriptionKey, p.settings.APIKey)
	header.Set("Authorization", "Bearer "+cred.Token)
	return header, nil
}

func (p *EON) get(ctx context.Context, operation, endpoint string, out any) error {
	header, err := p.authorizedHeader(ctx)
	if err != nil {
		return err
	}

	err = p.client.getJSON(ctx, operation, endpoint, header, out)
	if isUnauthorized(err) {
		p.creds.invalidate()
	}
	return err
}

// FetchAccountData returns the account balance as reported by E.ON
func (p *EON) FetchAccountData(ctx context.Context, accountContract string) (*domain.AccountBalance, error) {
	endpoint := p.settings.BaseURL + "/invoices/v1/invoices/invoice-balance?" + url.Values{
		"accountContract": {accountContract},
	}.Encode()

	var balance domain.AccountBalance
	if err := p.get(ctx, "fetch account data", endpoint, &balance); err != nil {
		return nil, err
	}

	return &balance, nil
}

// FetchInvoices lists invoices in the given status
func (p *EON) FetchInvoices(ctx context.Context, accountContract string, status domain.InvoiceStatus) (*domain.InvoiceList, error) {
	if status == "" {
		status = domain.InvoiceStatusUnpaid
	}
	if status == domain.InvoiceStatusAll {
		// share one login between both queries
		if _, err := p.Authenticate(ctx); err != nil {
			return nil, err
		}
		return fetchAllInvoices(ctx, accountContract, p.FetchInvoices)
	}

	endpoint := p.settings.BaseURL + "/invoices/v1/invoices/list?" + url.Values{
		"accountContract": {accountContract},
		"status":          {string(status)},
	}.Encode()

	var invoices []domain.Invoice
	if err := p.get(ctx, "fetch invoices", endpoint, &invoices); err != nil {
		return nil, err
	}

	for i := range invoices {
		normalizeInvoice(&invoices[i])
	}

	return &domain.InvoiceList{
		Invoices: invoices,
		Count:    len(invoices),
	}, nil
}

// PayInvoice is not offered by the E.ON API
func (p *EON) PayInvoice(ctx context.Context, accountContract, invoiceNumber string, amount float64) (*domain.PaymentResult, error) {
	return nil, &NotImplementedError{
		Provider:   EONName,
		Capability: CapabilityPayInvoice,
		Detail:     "the EON API does not provide a payment endpoint",
	}
}

// RejectInvoice is not offered by the E.ON API
func (p *EON) RejectInvoice(ctx context.Context, accountContract, invoiceNumber, reason string) (*domain.RejectionResult, error) {
	return nil, &NotImplementedError{
		Provider:   EONName,
		Capability: CapabilityRejectInvoice,
		Detail:     "the EON API does not provide an invoice rejection endpoint",
	}
}

var upstreamDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// normalizeDate rewrites a provider date as an ISO-8601 instant. Values that
// match no known layout are returned unchanged.
func normalizeDate(s string) string {
	if s == "" {
		return s
	}
	for _, layout := range upstreamDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return formatInstant(t)
		}
	}
	return s
}

func normalizeOptionalDate(s *string) *string {
	if s == nil {
		return nil
	}
	v := normalizeDate(*s)
	return &v
}

func normalizeInvoice(inv *domain.Invoice) {
	inv.MaturityDate = normalizeDate(inv.MaturityDate)
	inv.EmissionDate = normalizeDate(inv.EmissionDate)
	inv.DisconnectionDate = normalizeOptionalDate(inv.DisconnectionDate)
	inv.ArchiveDate = normalizeOptionalDate(inv.ArchiveDate)
	inv.State = domain.InvoiceStateFor(inv.BalanceValue)
}
