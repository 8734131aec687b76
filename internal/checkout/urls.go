package checkout

import (
	"net/url"
	"strings"

	"github.com/angelmondragon/relivv-escrow/pkg/enums"
	pkgerrors "github.com/angelmondragon/relivv-escrow/pkg/errors"
)

// sessionPlaceholder is substituted by the gateway on redirect.
const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// ReturnURLs are the pages the gateway sends the buyer back to.
type ReturnURLs struct {
	Success string
	Cancel  string
}

// BuildReturnURLs derives the storefront return pages from origin.
func BuildReturnURLs(origin string, source enums.CheckoutSource) (ReturnURLs, error) {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	parsed, err := url.Parse(origin)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ReturnURLs{}, pkgerrors.New(pkgerrors.CodeValidation, "a valid http(s) origin is required")
	}

	urls := ReturnURLs{
		Success: origin + "/payment-success?session_id=" + sessionPlaceholder,
		Cancel:  origin + "/browse",
	}
	if source == enums.CheckoutSourceCart {
		urls.Success += "&cart=true"
		urls.Cancel = origin + "/cart"
	}
	return urls, nil
}
