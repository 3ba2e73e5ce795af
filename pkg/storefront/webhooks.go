package storefront

import (
	"context"
	"fmt"
	"net/http"
)

func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var out []Webhook
	err := c.do(ctx, http.MethodGet, "/webhooks", nil, nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	return out, err
}

func (c *Client) CreateWebhook(ctx context.Context, event, url string) (*Webhook, error) {
	var out Webhook
	if err := c.do(ctx, http.MethodPost, "/webhooks", nil, webhookInput{Event: event, URL: url}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteWebhook(ctx context.Context, webhookID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/webhooks/%d", webhookID), nil, nil, nil)
}
