package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/agaseke/agaseke-backend/pkg/config"
	"github.com/agaseke/agaseke-backend/pkg/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("otp delivery topic is required")
)

// Client owns the Pub/Sub connection used to hand verification codes to the
// out-of-band sender. Only the OTP delivery topic is published to.
type Client struct {
	client *pubsub.Client
	topic  string

	once sync.Once
	pub  *pubsub.Publisher
}

// NewClient connects to Pub/Sub and checks the delivery topic exists,
// creating it when cfg.CreateTopic is set.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topic := TopicResourceName(project, cfg.OTPDeliveryTopic)
	if topic == "" {
		return nil, errTopicRequired
	}

	raw, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: raw, topic: topic}
	if err := c.ensureTopic(ctx, cfg.CreateTopic); err != nil {
		_ = raw.Close()
		return nil, err
	}

	logg.Info(logg.WithField(ctx, "topic", topic), "pubsub client initialized")
	return c, nil
}

func (c *Client) ensureTopic(ctx context.Context, create bool) error {
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	switch {
	case err == nil:
		return nil
	case status.Code(err) != codes.NotFound:
		return fmt.Errorf("checking topic %s: %w", c.topic, err)
	case !create:
		return fmt.Errorf("topic %s does not exist", c.topic)
	}
	_, err = c.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: c.topic})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("creating topic %s: %w", c.topic, err)
	}
	return nil
}

// OTPDeliveryPublisher returns the shared publisher for the delivery topic.
// Codes are time-sensitive, so messages are sent without batching delay.
func (c *Client) OTPDeliveryPublisher() *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	c.once.Do(func() {
		c.pub = c.client.Publisher(c.topic)
		c.pub.PublishSettings.CountThreshold = 1
		c.pub.PublishSettings.DelayThreshold = 0
	})
	return c.pub
}

// Ping verifies the delivery topic is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.ensureTopic(ctx, false)
}

// Close flushes the publisher and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.pub != nil {
		c.pub.Stop()
	}
	return c.client.Close()
}

// TopicResourceName expands a bare topic ID into projects/<p>/topics/<id>.
// Already qualified names pass through unchanged.
func TopicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + name
}
