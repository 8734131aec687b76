package enums

// PaymentProvider names the gateway that issued a payment session.
type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
)

func (p PaymentProvider) String() string {
	return string(p)
}
