package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/hopl-labs/hopl-backend/pkg/config"
)

func TestNewClientValidatesEnvironmentAndKeys(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, config.StripeConfig{Secret: "whsec_x"}, nil)
	require.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_1"}, nil)
	require.ErrorIs(t, err, errSecretRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_live_1", Secret: "whsec_x", Env: "test"}, nil)
	require.Error(t, err)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec_x", Env: "staging"}, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_live_1", Secret: "whsec_x", Env: "LIVE"}, nil)
	require.NoError(t, err)
	require.Equal(t, liveEnv, client.Environment())

	restricted, err := NewClient(ctx, config.StripeConfig{APIKey: "rk_test_1", Secret: "whsec_x"}, nil)
	require.NoError(t, err)
	require.Equal(t, testEnv, restricted.Environment())
}

func TestNewClientReportsEveryProblem(t *testing.T) {
	_, err := NewClient(context.Background(), config.StripeConfig{Env: "staging"}, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)
	require.ErrorIs(t, err, errAPIKeyRequired)
	require.ErrorIs(t, err, errSecretRequired)
	require.Len(t, multierr.Errors(err), 3)
}

func TestUninitializedClient(t *testing.T) {
	var client *Client
	_, err := client.CreateCheckoutSession(context.Background(), &stripe.CheckoutSessionParams{})
	require.ErrorIs(t, err, errNotInitialized)
	_, err = client.VerifyEvent([]byte("{}"), "t=1,v1=x")
	require.ErrorIs(t, err, errSecretRequired)
	require.Empty(t, client.Environment())
}

func TestCreateCheckoutSessionBindsContext(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "v")

	var seen *stripe.CheckoutSessionParams
	client := &Client{newSession: func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		seen = p
		return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
	}}

	sess, err := client.CreateCheckoutSession(ctx, &stripe.CheckoutSessionParams{Mode: stripe.String("payment")})
	require.NoError(t, err)
	require.Equal(t, "cs_test_1", sess.ID)
	require.Equal(t, "v", seen.Context.Value(ctxKey{}))

	_, err = client.CreateCheckoutSession(ctx, nil)
	require.Error(t, err)
}

func TestVerifyEvent(t *testing.T) {
	client := &Client{signingSecret: "whsec_test"}
	payload, err := json.Marshal(stripe.Event{
		ID:         "evt_1",
		Object:     "event",
		Type:       stripe.EventTypeCheckoutSessionCompleted,
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: json.RawMessage(`{"id":"cs_1"}`)},
	})
	require.NoError(t, err)

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	event, err := client.VerifyEvent(payload, header)
	require.NoError(t, err)
	require.Equal(t, "evt_1", event.ID)

	_, err = client.VerifyEvent(payload, "t=1,v1=deadbeef")
	require.Error(t, err)
}
