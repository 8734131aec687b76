package enums

// CheckoutSource records whether a payment session was opened for one product or a cart.
type CheckoutSource string

const (
	CheckoutSourceProduct CheckoutSource = "product"
	CheckoutSourceCart    CheckoutSource = "cart"
)
