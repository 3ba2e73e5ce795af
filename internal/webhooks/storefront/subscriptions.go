package storefrontwebhook

import (
	"context"
	"strings"

	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/storefront"
)

type subscriptionClient interface {
	ListWebhooks(ctx context.Context) ([]storefront.Webhook, error)
	CreateWebhook(ctx context.Context, event, url string) (*storefront.Webhook, error)
	DeleteWebhook(ctx context.Context, webhookID int64) error
}

// Subscriptions keeps the storefront webhook registrations pointed at this service.
type Subscriptions struct {
	client      subscriptionClient
	callbackURL string
	topics      []string
	logg        *logger.Logger
}

// SubscriptionReport lists what EnsureSubscriptions found and created.
type SubscriptionReport struct {
	CallbackURL string               `json:"callback_url"`
	Existing    []storefront.Webhook `json:"existing"`
	Created     []storefront.Webhook `json:"created"`
}

func NewSubscriptions(client subscriptionClient, callbackURL string, topics []string, logg *logger.Logger) (*Subscriptions, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "storefront client required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	clean := make([]string, 0, len(topics))
	seen := map[string]struct{}{}
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		clean = append(clean, t)
	}
	return &Subscriptions{
		client:      client,
		callbackURL: strings.TrimSpace(callbackURL),
		topics:      clean,
		logg:        logg,
	}, nil
}

// EnsureSubscriptions creates the missing {topic, callback} registrations.
func (s *Subscriptions) EnsureSubscriptions(ctx context.Context) (*SubscriptionReport, error) {
	if s.callbackURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook public base url is not configured")
	}
	current, err := s.client.ListWebhooks(ctx)
	if err != nil {
		return nil, err
	}

	report := &SubscriptionReport{
		CallbackURL: s.callbackURL,
		Existing:    []storefront.Webhook{},
		Created:     []storefront.Webhook{},
	}
	registered := map[string]bool{}
	for _, hook := range current {
		if hook.URL != s.callbackURL {
			continue
		}
		registered[strings.ToLower(hook.Event)] = true
		report.Existing = append(report.Existing, hook)
	}

	for _, topic := range s.topics {
		if registered[topic] {
			continue
		}
		hook, err := s.client.CreateWebhook(ctx, topic, s.callbackURL)
		if err != nil {
			return report, err
		}
		report.Created = append(report.Created, *hook)
		s.logg.Info(s.logg.WithField(ctx, "topic", topic), "storefront webhook registered")
	}
	return report, nil
}

// RemoveSubscriptions deletes every registration pointing at the callback URL.
// It returns the number removed.
func (s *Subscriptions) RemoveSubscriptions(ctx context.Context) (int, error) {
	if s.callbackURL == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "webhook public base url is not configured")
	}
	current, err := s.client.ListWebhooks(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, hook := range current {
		if hook.URL != s.callbackURL {
			continue
		}
		if err := s.client.DeleteWebhook(ctx, hook.ID.Int64()); err != nil && !storefront.IsNotFound(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
