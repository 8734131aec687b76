// Package stripe configures the process-wide stripe-go backend and keeps the
// webhook signing secret next to it.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

// Mode is the Stripe account mode a key belongs to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

const (
	httpTimeout       = 30 * time.Second
	maxNetworkRetries = 2
)

// keyPrefixes lists the secret and restricted key prefixes per mode.
var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

type Client struct {
	mode          Mode
	signingSecret string
}

// NewClient validates the credentials against the configured mode and points
// the stripe-go API backend at them. Call it once at startup.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := Mode(cfg.Environment())
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be %q or %q, got %q", ModeTest, ModeLive, cfg.Env)
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("stripe api key is required")
	}
	if !hasAnyPrefix(key, prefixes) {
		return nil, fmt.Errorf("stripe %s mode needs a %s key", mode, strings.Join(prefixes, " or "))
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}

	stripe.Key = key
	stripe.SetAppInfo(&stripe.AppInfo{Name: "relivv-escrow"})
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: httpTimeout},
		MaxNetworkRetries: stripe.Int64(maxNetworkRetries),
	}
	if logg != nil {
		backendCfg.LeveledLogger = leveledLogger{ctx: ctx, logg: logg}
		logg.Info(logg.WithField(ctx, "stripe_mode", string(mode)), "stripe.configured")
	}
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg))

	return &Client{mode: mode, signingSecret: secret}, nil
}

func (c *Client) Mode() Mode {
	if c == nil {
		return ""
	}
	return c.mode
}

// SigningSecret verifies Stripe-Signature headers on webhooks.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// leveledLogger routes stripe-go's own logging into ours. Debug output is dropped.
type leveledLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l leveledLogger) Debugf(string, ...interface{}) {}

func (l leveledLogger) Infof(format string, v ...interface{}) {
	l.logg.Info(l.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (l leveledLogger) Warnf(format string, v ...interface{}) {
	l.logg.Warn(l.ctx, "stripe: "+fmt.Sprintf(format, v...))
}

func (l leveledLogger) Errorf(format string, v ...interface{}) {
	l.logg.Error(l.ctx, "stripe: "+fmt.Sprintf(format, v...), nil)
}
