package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hopl-labs/hopl-backend/pkg/config"
	"github.com/hopl-labs/hopl-backend/pkg/gcp"
	"github.com/hopl-labs/hopl-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub events topic is required")
	errNameRequired      = errors.New("pubsub resource name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client wraps the Pub/Sub v2 client with the project's topic and subscription names.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

// NewClient connects and refuses to start when the events topic is missing.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcpCfg.ProjectID)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case strings.TrimSpace(cfg.EventsTopic) == "":
		return nil, errTopicRequired
	}

	ps, err := pubsub.NewClient(ctx, projectID, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: connect: %w", err)
	}
	c := &Client{client: ps, projectID: projectID, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project_id": projectID, "topic": cfg.EventsTopic}), "pubsub.client_ready")
	}
	return c, nil
}

// Ping confirms the events topic is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	name := c.topicName(c.cfg.EventsTopic)
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	return describe("topic", c.cfg.EventsTopic, err)
}

// EnsureSubscription fails when name does not exist, so a consumer never pulls
// from a subscription Pub/Sub would silently reject.
func (c *Client) EnsureSubscription(ctx context.Context, name string) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	full := c.subscriptionName(name)
	if full == "" {
		return errNameRequired
	}
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	return describe("subscription", name, err)
}

// AnalyticsSubscription is the subscriber the analytics worker pulls from.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	if full := c.subscriptionName(c.cfg.AnalyticsSubscription); full != "" {
		return c.client.Subscriber(full)
	}
	return nil
}

// Publisher accepts a topic id or a full projects/.../topics/... name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	if full := c.topicName(name); full != "" {
		return c.client.Publisher(full)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) topicName(name string) string        { return c.qualify("topics", name) }
func (c *Client) subscriptionName(name string) string { return c.qualify("subscriptions", name) }

// qualify expands a bare id into projects/<project>/<kind>/<id>. Names that are
// already qualified for kind pass through.
func (c *Client) qualify(kind, name string) string {
	name = strings.TrimSpace(name)
	if c == nil || name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + kind + "/" + name
}

func describe(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub: %s %q does not exist", kind, name)
	default:
		return fmt.Errorf("pubsub: check %s %q: %w", kind, name, err)
	}
}
