// Package pubsub wraps the Pub/Sub v2 client for the outbox publisher.
// Nothing in this service consumes from Pub/Sub.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("pubsub: gcp project id is required")
	errNoTopics          = errors.New("pubsub: no topics configured")
	// ErrTopicMissing is returned when a configured topic does not exist in the project.
	ErrTopicMissing = errors.New("pubsub: topic does not exist")
)

type Client struct {
	inner    *gcppubsub.Client
	project  string
	topics   []string
	settings config.PubSubConfig
}

// NewClient dials Pub/Sub and fails unless every configured topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topics := topicNames(project, cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	inner, err := gcppubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: dial: %w", err)
	}

	c := &Client{inner: inner, project: project, topics: topics, settings: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = inner.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", topics), "pubsub client ready")
	}
	return c, nil
}

// Ping looks up every configured topic in parallel.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.inner == nil {
		return errors.New("pubsub: client not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range c.topics {
		g.Go(func() error {
			_, err := c.inner.TopicAdminClient.GetTopic(gctx, &pubsubpb.GetTopicRequest{Topic: topic})
			switch {
			case err == nil:
				return nil
			case status.Code(err) == codes.NotFound:
				return fmt.Errorf("%w: %s", ErrTopicMissing, topic)
			default:
				return fmt.Errorf("pubsub: get topic %s: %w", topic, err)
			}
		})
	}
	return g.Wait()
}

// Publisher returns a batching publisher for a topic id or full resource name.
// Message ordering is switched on when the config asks for per-aggregate order.
func (c *Client) Publisher(name string) *gcppubsub.Publisher {
	if c == nil || c.inner == nil {
		return nil
	}
	resource := topicResourceName(c.project, name)
	if resource == "" {
		return nil
	}
	pub := c.inner.Publisher(resource)
	if c.settings.PublishDelay > 0 {
		pub.PublishSettings.DelayThreshold = c.settings.PublishDelay
	}
	pub.EnableMessageOrdering = c.settings.OrderByAggregate
	return pub
}

func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

func topicNames(project string, cfg config.PubSubConfig) []string {
	var out []string
	for _, name := range []string{cfg.EscrowTopic, cfg.NotificationTopic} {
		if resource := topicResourceName(project, name); resource != "" {
			out = append(out, resource)
		}
	}
	return out
}

// topicResourceName expands a bare topic id to projects/<p>/topics/<id>.
// Full resource names pass through untouched.
func topicResourceName(project, name string) string {
	name = strings.TrimSpace(name)
	project = strings.TrimSpace(project)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/"):
		return name
	case project == "":
		return ""
	}
	return "projects/" + project + "/topics/" + name
}
