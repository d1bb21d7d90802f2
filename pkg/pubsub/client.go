package pubsub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/partsreserve-backend/pkg/config"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

// Client publishes engine events. The engine never subscribes; downstream
// consumers own their subscriptions.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string
	lookup    topicLookup
}

// topicLookup resolves one full topic resource name.
type topicLookup func(ctx context.Context, resource string) error

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("at least one pubsub topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// NewClient opens a Pub/Sub v2 client and checks that every configured
// topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	topics := TopicNames(cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: psClient, projectID: gcp.ProjectID, topics: topics}
	c.lookup = func(ctx context.Context, resource string) error {
		_, err := psClient.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: resource})
		return err
	}
	if err := c.ensureTopics(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		fields := map[string]any{"topics": topics, "emulator": gcp.PubSubEmulatorHost != ""}
		logg.Info(logg.WithFields(ctx, fields), "pubsub client initialized")
	}
	return c, nil
}

// clientOptions targets the emulator when one is configured. Otherwise
// inline credentials win over a key file, and with neither the client falls
// back to application default credentials.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if host := strings.TrimSpace(gcp.PubSubEmulatorHost); host != "" {
		return []option.ClientOption{
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		}
	}
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// TopicNames lists the configured topics once each, skipping blanks.
func TopicNames(cfg config.PubSubConfig) []string {
	names := []string{}
	for _, name := range []string{cfg.TransfersTopic, cfg.ReservationsTopic, cfg.StockTopic} {
		if trimmed := strings.TrimSpace(name); trimmed != "" && !slices.Contains(names, trimmed) {
			names = append(names, trimmed)
		}
	}
	return names
}

// ensureTopics looks every topic up in parallel and reports each missing or
// unreachable one.
func (c *Client) ensureTopics(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range c.topics {
		g.Go(func() error {
			err := c.lookup(gctx, TopicResourceName(c.projectID, name))
			switch {
			case err == nil:
				return nil
			case status.Code(err) == codes.NotFound:
				err = fmt.Errorf("topic %q does not exist", name)
			default:
				err = fmt.Errorf("checking topic %q: %w", name, err)
			}
			mu.Lock()
			errs = multierr.Append(errs, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Publisher returns a publisher for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := TopicResourceName(c.projectID, name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

// Ping re-checks the configured topics.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.lookup == nil {
		return errNotInitialized
	}
	return c.ensureTopics(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// TopicResourceName expands a topic id to projects/<p>/topics/<id>. Full
// resource names pass through unchanged.
func TopicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}
