package pubsub

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func (c *Client) checkTopics(ctx context.Context, create bool) error {
	names := topicNames(c.cfg)
	if len(names) == 0 {
		return errNoTopics
	}
	for _, name := range names {
		if err := c.checkTopic(ctx, name, create); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) checkTopic(ctx context.Context, name string, create bool) error {
	fullName := topicResourceName(c.projectID, name)
	if fullName == "" {
		return fmt.Errorf("topic %q not configured", name)
	}

	admin := c.client.TopicAdminClient
	_, err := admin.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	switch {
	case err == nil:
		return nil
	case status.Code(err) != codes.NotFound:
		return fmt.Errorf("checking topic %q: %w", name, err)
	case !create:
		return fmt.Errorf("topic %q does not exist", name)
	}

	_, err = admin.CreateTopic(ctx, &pubsubpb.Topic{Name: fullName})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("creating topic %q: %w", name, err)
	}
	return nil
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	if trimmed := strings.TrimSpace(cfg.TeamTopic); trimmed != "" {
		names = append(names, trimmed)
	}
	return names
}

// topicResourceName expands a bare topic id to projects/<p>/topics/<id>.
// Full resource names pass through untouched.
func topicResourceName(projectID, name string) string {
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
