package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/go-resty/resty/v2"
)

// RequestIDHeader carries the id of the admin request or webhook that caused
// a storefront call, so both sides can be matched in logs.
const RequestIDHeader = "X-Request-Id"

const (
	defaultBaseURL   = "https://api.tiendanube.com/v1"
	defaultUserAgent = "catalogsync (suporte@catalogsync.dev)"
	defaultLanguage  = "pt"
	defaultTimeout   = 20 * time.Second
	maxUserAgentLen  = 200
)

var (
	errStoreIDRequired     = errors.New("storefront store id is required")
	errAccessTokenRequired = errors.New("storefront access token is required")
)

// Client talks to the storefront platform REST API for a single store.
type Client struct {
	http     *resty.Client
	language string
}

type settings struct {
	baseURL    string
	userAgent  string
	language   string
	timeout    time.Duration
	httpClient *http.Client
}

// Option configures optional client behavior.
type Option func(*settings)

// WithBaseURL overrides the API root (without the store id suffix).
func WithBaseURL(baseURL string) Option {
	return func(s *settings) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			s.baseURL = trimmed
		}
	}
}

// WithUserAgent sets the User-Agent the platform requires on every call.
func WithUserAgent(userAgent string) Option {
	return func(s *settings) {
		if ua := sanitizeUserAgent(userAgent); ua != "" {
			s.userAgent = ua
		}
	}
}

// WithTimeout bounds each request in addition to the caller context.
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithLanguage selects the locale used for category names.
func WithLanguage(lang string) Option {
	return func(s *settings) {
		if trimmed := strings.TrimSpace(lang); trimmed != "" {
			s.language = trimmed
		}
	}
}

// WithHTTPClient swaps the underlying transport client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewClient builds a storefront client bound to storeID.
func NewClient(storeID, accessToken string, opts ...Option) (*Client, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return nil, errStoreIDRequired
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}

	s := settings{
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		language:  defaultLanguage,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	var rc *resty.Client
	if s.httpClient != nil {
		rc = resty.NewWithClient(s.httpClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(s.baseURL+"/"+storeID).
		SetTimeout(s.timeout).
		SetHeader("Authentication", "bearer "+accessToken).
		SetHeader("User-Agent", s.userAgent).
		SetHeader("Accept", "application/json")

	return &Client{http: rc, language: s.language}, nil
}

// Language returns the locale used for localized fields.
func (c *Client) Language() string {
	return c.language
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	if c == nil || c.http == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "storefront client not configured")
	}

	req := c.http.R().SetContext(ctx)
	if id := logger.RequestIDFrom(ctx); id != "" {
		req.SetHeader(RequestIDHeader, id)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("storefront %s %s", method, path))
	}

	if resp.IsError() {
		return classify(&APIError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode(),
			Body:   string(resp.Body()),
		})
	}

	raw := resp.Body()
	if out == nil || len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, err, fmt.Sprintf("decode storefront %s %s", method, path)).
			WithDetails(map[string]any{"body": truncate(string(raw), maxErrorBody)})
	}
	return nil
}

// sanitizeUserAgent drops control and non-printable characters.
func sanitizeUserAgent(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r == '\r' || r == '\n' || r == '\t':
			b.WriteRune(' ')
		case r >= 0x20 && r <= 0x7e:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if len(out) > maxUserAgentLen {
		out = out[:maxUserAgentLen]
	}
	return out
}
