package enums

// InvoiceStatus tracks the accounting state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusIssued    InvoiceStatus = "issued"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
	InvoiceStatusRefunded  InvoiceStatus = "refunded"
)

var validInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusIssued,
	InvoiceStatusPaid,
	InvoiceStatusCancelled,
	InvoiceStatusRefunded,
}

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) IsValid() bool {
	return member(s, validInvoiceStatuses)
}

// ParseInvoiceStatus converts raw input into an InvoiceStatus.
func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	return parse("invoice status", value, validInvoiceStatuses)
}
