package storefrontwebhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/storefront"
)

type stubSubscriptionClient struct {
	hooks   []storefront.Webhook
	created []string
	deleted []int64
	nextID  int64
}

func (s *stubSubscriptionClient) ListWebhooks(context.Context) ([]storefront.Webhook, error) {
	return s.hooks, nil
}

func (s *stubSubscriptionClient) CreateWebhook(_ context.Context, event, url string) (*storefront.Webhook, error) {
	s.nextID++
	s.created = append(s.created, event)
	hook := storefront.Webhook{ID: storefront.ID(s.nextID), Event: event, URL: url}
	s.hooks = append(s.hooks, hook)
	return &hook, nil
}

func (s *stubSubscriptionClient) DeleteWebhook(_ context.Context, id int64) error {
	s.deleted = append(s.deleted, id)
	return nil
}

const callback = "https://sync.example.com/api/v1/webhooks/storefront"

func TestEnsureSubscriptionsCreatesOnlyMissingTopics(t *testing.T) {
	client := &stubSubscriptionClient{
		nextID: 10,
		hooks: []storefront.Webhook{
			{ID: 1, Event: "product/deleted", URL: callback},
			{ID: 2, Event: "product/updated", URL: "https://elsewhere.example.com/hook"},
		},
	}
	subs, err := NewSubscriptions(client, callback, []string{"product/deleted", " Product/Updated ", "product/deleted"}, nil)
	require.NoError(t, err)

	report, err := subs.EnsureSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"product/updated"}, client.created)
	assert.Len(t, report.Existing, 1)
	assert.Len(t, report.Created, 1)

	report, err = subs.EnsureSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Created)
	assert.Len(t, client.created, 1)
}

func TestRemoveSubscriptionsOnlyTouchesOwnCallback(t *testing.T) {
	client := &stubSubscriptionClient{
		hooks: []storefront.Webhook{
			{ID: 1, Event: "product/deleted", URL: callback},
			{ID: 2, Event: "product/updated", URL: "https://elsewhere.example.com/hook"},
			{ID: 3, Event: "product/updated", URL: callback},
		},
	}
	subs, err := NewSubscriptions(client, callback, nil, nil)
	require.NoError(t, err)

	n, err := subs.RemoveSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, client.deleted)
}

func TestSubscriptionsRequireCallback(t *testing.T) {
	subs, err := NewSubscriptions(&stubSubscriptionClient{}, "", []string{"product/deleted"}, nil)
	require.NoError(t, err)
	_, err = subs.EnsureSubscriptions(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
