package domain

// AccountBalance is the result of a fetch-account-data job
type AccountBalance struct {
	Balance                 float64 `json:"balance"`
	Refund                  bool    `json:"refund"`
	Date                    string  `json:"date"`
	RefundInProcess         bool    `json:"refundInProcess"`
	RefundRequestCreatedAt  *string `json:"refundRequestCreatedAt"`
	HasGuarantee            bool    `json:"hasGuarantee"`
	HasUnpaidGuarantee      bool    `json:"hasUnpaidGuarantee"`
	BalancePay              bool    `json:"balancePay"`
	RefundDocumentsRequired bool    `json:"refundDocumentsRequired"`
	IsAssociation           bool    `json:"isAssociation"`
}

// Invoice is the provider-independent invoice shape. Dates are ISO-8601 instants.
type Invoice struct {
	FiscalNumber           string  `json:"fiscalNumber"`
	MaturityDate           string  `json:"maturityDate"`
	EmissionDate           string  `json:"emissionDate"`
	DisconnectionDate      *string `json:"disconnectionDate"`
	PrintDate              string  `json:"printDate"`
	ArchiveDate            *string `json:"archiveDate"`
	IssuedValue            float64 `json:"issuedValue"`
	BalanceValue           float64 `json:"balanceValue"`
	InvoiceNumber          string  `json:"invoiceNumber"`
	State                  string  `json:"state"`
	Type                   string  `json:"type"`
	Sector                 string  `json:"sector"`
	CB                     string  `json:"cb"`
	CompanyCode            string  `json:"companyCode"`
	Electronic             bool    `json:"electronic"`
	AccountContract        string  `json:"accountContract"`
	HasDetails             bool    `json:"hasDetails"`
	HasPDF                 bool    `json:"hasPdf"`
	IsDownloadable         bool    `json:"isDownloadable"`
	CanPay                 bool    `json:"canPay"`
	CanActivate            bool    `json:"canActivate"`
	InvoiceTypeCode        string  `json:"invoiceTypeCode"`
	PaymentInstalment      bool    `json:"paymentInstalment"`
	Refund                 bool    `json:"refund"`
	RefundInProcess        bool    `json:"refundInProcess"`
	DigitalInvoice         bool    `json:"digitalInvoice"`
	RefundRequestCreatedAt *string `json:"refundRequestCreatedAt"`
	Storno                 *string `json:"storno"`
}

// Invoice states derived from the remaining balance
const (
	InvoiceStateUnpaid = "unpaid"
	InvoiceStatePaid   = "paid"
)

// InvoiceStateFor derives the paid/unpaid state from the remaining balance.
func InvoiceStateFor(balance float64) string {
	if balance > 0 {
		return InvoiceStateUnpaid
	}
	return InvoiceStatePaid
}

// InvoiceList is the result of a fetch-invoice job
type InvoiceList struct {
	Invoices []Invoice `json:"invoices"`
	Count    int       `json:"count"`
}

// PaymentResult is the result of a pay-invoice job
type PaymentResult struct {
	Success       bool    `json:"success"`
	TransactionID string  `json:"transactionId,omitempty"`
	InvoiceNumber string  `json:"invoiceNumber"`
	Amount        float64 `json:"amount"`
	PaidAt        string  `json:"paidAt"`
	Message       string  `json:"message,omitempty"`
}

// RejectionResult is the result of a reject-invoice job
type RejectionResult struct {
	Success       bool   `json:"success"`
	InvoiceNumber string `json:"invoiceNumber"`
	RejectedAt    string `json:"rejectedAt"`
	Reason        string `json:"reason"`
	Message       string `json:"message,omitempty"`
}
