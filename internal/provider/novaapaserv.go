package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/invoice-notifier/internal/domain"
)

const (
	// NovaApaServName is the registry id of the Nova Apa Serv adapter
	NovaApaServName = "nova-apa-serv"

	novaDefaultBaseURL   = "https://www.apabotosani.ro"
	novaDefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:145.0) Gecko/20100101 Firefox/145.0"
	novaSessionCookie    = "ASP.NET_SessionId"
	novaSessionTTL       = 15 * time.Minute
)

type novaAuthResponse struct {
	Code    int    `json:"Code"`
	Message string `json:"Message"`
}

type novaInvoice struct {
	Achitat          float64 `json:"Achitat"`
	CanDownload      bool    `json:"CanDownload"`
	CodAbonat        int64   `json:"CodAbonat"`
	Data             string  `json:"Data"`
	DataAsString     string  `json:"DataAsString"`
	DataFact         string  `json:"DataFact"`
	DataFactAsString string  `json:"DataFactAsString"`
	Email            string  `json:"Email"`
	Fact             int64   `json:"Fact"`
	NrFact           int64   `json:"NrFact"`
	Numar            int64   `json:"Numar"`
	Restplata        float64 `json:"Restplata"`
	TotalFactura     float64 `json:"Total_factura"`
}

// NovaApaServ talks to the Nova Apa Serv customer portal with an ASP.NET session cookie
type NovaApaServ struct {
	settings Settings
	client   *apiClient
	creds    *credentialCache
	now      func() time.Time
	logger   *slog.Logger
}

// NewNovaApaServ creates the Nova Apa Serv adapter
func NewNovaApaServ(settings Settings, cfg ClientConfig, logger *slog.Logger) (*NovaApaServ, error) {
	if settings.BaseURL == "" {
		settings.BaseURL = novaDefaultBaseURL
	}
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")

	if _, err := url.Parse(settings.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid nova-apa-serv base url: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	client := newAPIClient(NovaApaServName, cfg, novaDefaultUserAgent, logger)

	return &NovaApaServ{
		settings: settings,
		client:   client,
		creds:    newCredentialCache(now),
		now:      now,
		logger:   client.logger,
	}, nil
}

func (p *NovaApaServ) Name() string { return NovaApaServName }

func (p *NovaApaServ) portalHeader() http.Header {
	header := http.Header{}
	header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	header.Set("X-Requested-With", "XMLHttpRequest")
	header.Set("Referer", p.settings.BaseURL+"/pages/contulmeu.html")
	return header
}

// Authenticate logs in and caches the session id. The portal declares no
// lifetime, so sessions are kept for a conservative 15 minutes.
func (p *NovaApaServ) Authenticate(ctx context.Context) (Credential, error) {
	return p.creds.get(ctx, p.login)
}

func (p *NovaApaServ) login(ctx context.Context) (Credential, error) {
	body, err := json.Marshal(map[string]any{
		"username":  p.settings.Username,
		"password":  p.settings.Password,
		"tipClient": 0,
	})
	if err != nil {
		return Credential{}, fmt.Errorf("failed to marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.settings.BaseURL+"/AuthService.svc/Authentificate", bytes.NewReader(body))
	if err != nil {
		return Credential{}, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header = p.portalHeader()
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Origin", p.settings.BaseURL)

	resp, err := p.client.do(ctx, req)
	if err != nil {
		return Credential{}, &AuthenticationError{Provider: NovaApaServName, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Credential{}, &AuthenticationError{
			Provider:   NovaApaServName,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	var auth novaAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return Credential{}, &AuthenticationError{Provider: NovaApaServName, Message: "malformed login response: " + err.Error()}
	}
	if auth.Code != 0 {
		return Credential{}, &AuthenticationError{Provider: NovaApaServName, Message: auth.Message}
	}

	var session string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == novaSessionCookie {
			session = cookie.Value
			break
		}
	}
	if session == "" {
		return Credential{}, &AuthenticationError{Provider: NovaApaServName, Message: "no session cookie received from authentication"}
	}

	p.logger.Info("Authenticated with provider",
		slog.Duration("session_ttl", novaSessionTTL),
	)

	return Credential{Token: session, ExpiresAt: p.now().Add(novaSessionTTL)}, nil
}

func (p *NovaApaServ) listInvoices(ctx context.Context, operation, method, accountContract string) ([]novaInvoice, error) {
	cred, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := p.settings.BaseURL + "/AuthService.svc/" + method + "?" + url.Values{
		"tipAbonat": {"0"},
		"codAbonat": {accountContract},
		"_":         {strconv.FormatInt(p.now().UnixMilli(), 10)},
	}.Encode()

	header := p.portalHeader()
	header.Set("Cookie", novaSessionCookie+"="+cred.Token)

	var invoices []novaInvoice
	err = p.client.getJSON(ctx, operation, endpoint, header, &invoices)
	if isUnauthorized(err) {
		p.creds.invalidate()
	}
	if err != nil {
		return nil, err
	}

	return invoices, nil
}

// FetchAccountData derives the balance from the unpaid invoice remainders,
// as the portal has no balance endpoint
func (p *NovaApaServ) FetchAccountData(ctx context.Context, accountContract string) (*domain.AccountBalance, error) {
	unpaid, err := p.listInvoices(ctx, "fetch account data", "GetFacturiNeachitate", accountContract)
	if err != nil {
		return nil, err
	}

	var balance float64
	for _, inv := range unpaid {
		balance += inv.Restplata
	}

	return &domain.AccountBalance{
		Balance:    balance,
		Date:       formatInstant(p.now()),
		BalancePay: balance > 0,
	}, nil
}

// FetchInvoices lists invoices in the given status
func (p *NovaApaServ) FetchInvoices(ctx context.Context, accountContract string, status domain.InvoiceStatus) (*domain.InvoiceList, error) {
	var method string
	switch status {
	case domain.InvoiceStatusPaid:
		method = "GetFacturiAchitate"
	case domain.InvoiceStatusUnpaid, "":
		method = "GetFacturiNeachitate"
	case domain.InvoiceStatusAll:
		if _, err := p.Authenticate(ctx); err != nil {
			return nil, err
		}
		return fetchAllInvoices(ctx, accountContract, p.FetchInvoices)
	default:
		return nil, fmt.Errorf("unsupported invoice status: %s", status)
	}

	raw, err := p.listInvoices(ctx, "fetch invoices", method, accountContract)
	if err != nil {
		return nil, err
	}

	invoices := make([]domain.Invoice, 0, len(raw))
	for _, inv := range raw {
		normalized, err := normalizeNovaInvoice(inv, accountContract)
		if err != nil {
			return nil, fmt.Errorf("%s: invoice %d: %w", NovaApaServName, inv.NrFact, err)
		}
		invoices = append(invoices, normalized)
	}

	return &domain.InvoiceList{
		Invoices: invoices,
		Count:    len(invoices),
	}, nil
}

// PayInvoice is not offered by the Nova Apa Serv portal
func (p *NovaApaServ) PayInvoice(ctx context.Context, accountContract, invoiceNumber string, amount float64) (*domain.PaymentResult, error) {
	return nil, &NotImplementedError{
		Provider:   NovaApaServName,
		Capability: CapabilityPayInvoice,
		Detail:     "Nova Apa Serv does not provide a payment API endpoint",
	}
}

// RejectInvoice is not offered by the Nova Apa Serv portal
func (p *NovaApaServ) RejectInvoice(ctx context.Context, accountContract, invoiceNumber, reason string) (*domain.RejectionResult, error) {
	return nil, &NotImplementedError{
		Provider:   NovaApaServName,
		Capability: CapabilityRejectInvoice,
		Detail:     "Nova Apa Serv does not provide an invoice rejection/dispute API endpoint",
	}
}

func normalizeNovaInvoice(inv novaInvoice, accountContract string) (domain.Invoice, error) {
	maturity, err := parseASPNetDate(inv.Data)
	if err != nil {
		return domain.Invoice{}, err
	}
	emission, err := parseASPNetDate(inv.DataFact)
	if err != nil {
		return domain.Invoice{}, err
	}

	number := strconv.FormatInt(inv.NrFact, 10)
	unpaid := inv.Restplata > 0

	return domain.Invoice{
		FiscalNumber:      number,
		MaturityDate:      formatInstant(maturity),
		EmissionDate:      formatInstant(emission),
		PrintDate:         inv.DataAsString,
		IssuedValue:       inv.TotalFactura,
		BalanceValue:      inv.Restplata,
		InvoiceNumber:     number,
		State:             domain.InvoiceStateFor(inv.Restplata),
		Type:              "water",
		Sector:            "utilities",
		CB:                accountContract,
		CompanyCode:       "NOVA_APA_SERV",
		Electronic:        true,
		AccountContract:   accountContract,
		HasDetails:        true,
		HasPDF:            inv.CanDownload,
		IsDownloadable:    inv.CanDownload,
		CanPay:            unpaid,
		InvoiceTypeCode:   "WATER",
		DigitalInvoice:    true,
		PaymentInstalment: false,
	}, nil
}

var aspNetDatePattern = regexp.MustCompile(`^/Date\((-?\d+)([+-]\d{4})?\)/$`)

// parseASPNetDate parses the WCF JSON date encoding "/Date(1762898400000+0200)/".
// The number is milliseconds since the Unix epoch in UTC; the suffix is the
// server's offset and is kept as the returned time's zone.
func parseASPNetDate(s string) (time.Time, error) {
	m := aspNetDatePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("invalid date format: %q", s)
	}

	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date timestamp %q: %w", s, err)
	}
	t := time.UnixMilli(ms).UTC()

	if m[2] != "" {
		sign := 1
		if m[2][0] == '-' {
			sign = -1
		}
		hours, _ := strconv.Atoi(m[2][1:3])
		minutes, _ := strconv.Atoi(m[2][3:5])
		t = t.In(time.FixedZone(m[2], sign*(hours*3600+minutes*60)))
	}

	return t, nil
}
