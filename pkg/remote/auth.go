package remote

import (
	"context"
	"fmt"
)

// AuthorizeChannel asks the API for a subscription signature for a private
// realtime channel. The bearer token of the current session is used.
func (c *Client) AuthorizeChannel(ctx context.Context, channel string) (string, error) {
	if c.session.Snapshot().Token == "" {
		return "", fmt.Errorf("channel %s: %w", channel, ErrUnauthenticated)
	}
	var out struct {
		Auth string `json:"auth"`
	}
	body := map[string]string{"channel_name": channel}
	if err := c.Post(ctx, "/realtime/auth", body, &out); err != nil {
		return "", fmt.Errorf("failed to authorize channel %s: %w", channel, err)
	}
	if out.Auth == "" {
		return "", fmt.Errorf("failed to authorize channel %s: empty signature", channel)
	}
	return out.Auth, nil
}

// RefreshToken exchanges the current token for a new one.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.Post(ctx, "/auth/refresh", nil, &out); err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("failed to refresh token: empty token in response")
	}
	return out.Token, nil
}
