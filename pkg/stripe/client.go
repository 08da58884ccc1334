package stripe

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/stripe/stripe-go/v84"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/webhook"
	"go.uber.org/multierr"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
	errNotInitialized   = errors.New("stripe client not initialized")
)

// keyPrefixes lists the secret and restricted key prefixes each environment accepts.
var keyPrefixes = map[string][]string{
	testEnv: {"sk_test_", "rk_test_"},
	liveEnv: {"sk_live_", "rk_live_"},
}

// Client covers the two Stripe surfaces the backend touches: hosted checkout
// and webhook signature verification.
type Client struct {
	environment   string
	signingSecret string
	newSession    func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewClient validates cfg and sets the SDK's global key. Every configuration
// problem is reported in a single error.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)

	var errs error
	if _, ok := keyPrefixes[env]; !ok {
		errs = multierr.Append(errs, errInvalidStripeEnv)
	}
	if apiKey == "" {
		errs = multierr.Append(errs, errAPIKeyRequired)
	} else if prefixes, ok := keyPrefixes[env]; ok && !hasAnyPrefix(apiKey, prefixes) {
		errs = multierr.Append(errs, fmt.Errorf("stripe %s environment needs a key starting with %s", env, strings.Join(prefixes, " or ")))
	}
	if secret == "" {
		errs = multierr.Append(errs, errSecretRequired)
	}
	if errs != nil {
		return nil, errs
	}

	stripe.Key = apiKey
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe.client_ready")
	}
	return &Client{environment: env, signingSecret: secret, newSession: checkoutsession.New}, nil
}

// CreateCheckoutSession opens a hosted checkout session; ctx cancels the HTTP call.
func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	switch {
	case c == nil || c.newSession == nil:
		return nil, errNotInitialized
	case params == nil:
		return nil, errors.New("checkout session params are required")
	}
	params.Context = ctx
	return c.newSession(params)
}

// VerifyEvent authenticates a webhook body against its Stripe-Signature header.
// API version mismatches are tolerated; only the checkout payload is read.
func (c *Client) VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	if c == nil || c.signingSecret == "" {
		return stripe.Event{}, errSecretRequired
	}
	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	return webhook.ConstructEventWithOptions(payload, signatureHeader, c.signingSecret, opts)
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func hasAnyPrefix(s string, prefixes []string) bool {
	return slices.ContainsFunc(prefixes, func(p string) bool { return strings.HasPrefix(s, p) })
}
