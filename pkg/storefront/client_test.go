package storefront

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient("123", "tok",
		WithBaseURL("http://store.test/v1/"),
		WithUserAgent("catalogsync tests\n(dev@example.com)"),
		WithHTTPClient(&http.Client{Transport: rt}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	if _, err := NewClient(" ", "tok"); err == nil {
		t.Fatal("expected store id error")
	}
	if _, err := NewClient("1", ""); err == nil {
		t.Fatal("expected token error")
	}
}

func TestGetProductSendsAuthHeadersAndDecodesLooseTypes(t *testing.T) {
	var captured *http.Request
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusOK, `{
			"id": "42",
			"name": {"pt": "Camiseta"},
			"variants": [
				{"id": 7, "product_id": 42, "sku": "789", "barcode": 7891234567890, "stock": "5", "price": "19.90"},
				{"id": "8", "product_id": "42", "sku": null, "barcode": null, "stock": null, "price": null}
			]
		}`), nil
	})

	product, err := client.GetProduct(context.Background(), 42)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got := captured.URL.String(); got != "http://store.test/v1/123/products/42" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := captured.Header.Get("Authentication"); got != "bearer tok" {
		t.Fatalf("unexpected auth header %q", got)
	}
	if got := captured.Header.Get("User-Agent"); got != "catalogsync tests (dev@example.com)" {
		t.Fatalf("user agent not sanitized: %q", got)
	}

	if product.ID != 42 || product.Name.Get("pt") != "Camiseta" {
		t.Fatalf("unexpected product %+v", product)
	}
	if len(product.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(product.Variants))
	}
	first := product.Variants[0]
	if first.Barcode != "7891234567890" || !first.Stock.Valid || first.Stock.Value != 5 {
		t.Fatalf("unexpected first variant %+v", first)
	}
	if !first.Price.Valid || first.Price.Decimal.String() != "19.9" {
		t.Fatalf("unexpected price %v", first.Price)
	}
	second := product.Variants[1]
	if second.ID != 8 || second.SKU != "" || second.Stock.Valid || second.Price.Valid {
		t.Fatalf("unexpected second variant %+v", second)
	}
}

func TestRequestIDIsForwarded(t *testing.T) {
	var headers []string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		headers = append(headers, req.Header.Get(RequestIDHeader))
		return jsonResponse(http.StatusOK, `{"id": 42}`), nil
	})

	ctx := logger.ContextWithRequestID(context.Background(), "req-9")
	if _, err := client.GetProduct(ctx, 42); err != nil {
		t.Fatalf("get product: %v", err)
	}
	if _, err := client.GetProduct(context.Background(), 42); err != nil {
		t.Fatalf("get product: %v", err)
	}
	if headers[0] != "req-9" || headers[1] != "" {
		t.Fatalf("unexpected request id headers %q", headers)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      pkgerrors.Code
		retryable bool
	}{
		{name: "not found", status: 404, body: `{"code":404}`, code: pkgerrors.CodeRemoteNotFound},
		{name: "category limit", status: 422, body: `{"description":"You have reached the Maximum limit of 1000 allowed categories"}`, code: pkgerrors.CodeCategoryLimit},
		{name: "other 422", status: 422, body: `{"name":["is required"]}`, code: pkgerrors.CodeDependency},
		{name: "rate limit", status: 429, body: ``, code: pkgerrors.CodeDependency, retryable: true},
		{name: "server", status: 502, body: `bad gateway`, code: pkgerrors.CodeDependency, retryable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
				return jsonResponse(tt.status, tt.body), nil
			})
			_, err := client.CreateCategory(context.Background(), "Roupas", 0)
			typed := pkgerrors.As(err)
			if typed == nil {
				t.Fatalf("expected typed error, got %v", err)
			}
			if typed.Code() != tt.code {
				t.Fatalf("expected %s, got %s", tt.code, typed.Code())
			}
			if typed.Retryable() != tt.retryable {
				t.Fatalf("expected retryable=%v", tt.retryable)
			}
			dump := pkgerrors.Dump(err)
			if dump.RemoteStatus != tt.status {
				t.Fatalf("expected remote status %d in dump, got %d", tt.status, dump.RemoteStatus)
			}
		})
	}
}

func TestMalformedBodyIsDistinctError(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"id": [}`), nil
	})
	_, err := client.GetProduct(context.Background(), 1)
	if !pkgerrors.IsCode(err, pkgerrors.CodeMalformedPayload) {
		t.Fatalf("expected malformed payload, got %v", err)
	}
}

func TestSearchBySKUTreatsNotFoundAsEmpty(t *testing.T) {
	var rawQuery string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		rawQuery = req.URL.RawQuery
		return jsonResponse(http.StatusNotFound, `{"code":404,"message":"Not Found","description":"Last page is 0"}`), nil
	})
	products, err := client.SearchBySKU(context.Background(), "INT-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("expected no products, got %d", len(products))
	}
	if rawQuery != "sku=INT-9" {
		t.Fatalf("unexpected query %q", rawQuery)
	}
}

func TestListCategoriesQuery(t *testing.T) {
	var queries []string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		queries = append(queries, req.URL.Query().Encode())
		return jsonResponse(http.StatusOK, `[
			{"id": 1, "name": {"pt": "Roupas"}, "parent": null},
			{"id": 2, "name": {"pt": "Camisas"}, "parent": 1}
		]`), nil
	})

	all, err := client.ListCategories(context.Background(), 0, 1, 200)
	if err != nil {
		t.Fatalf("list roots: %v", err)
	}
	if len(all) != 2 || all[0].Parent != 0 || all[1].Parent != 1 {
		t.Fatalf("unexpected categories %+v", all)
	}

	if _, err := client.ListCategories(context.Background(), 1, 2, 200); err != nil {
		t.Fatalf("list children: %v", err)
	}

	if queries[0] != "language=pt&page=1&per_page=200" {
		t.Fatalf("root query should omit parent: %q", queries[0])
	}
	if queries[1] != "language=pt&page=2&parent_id=1&per_page=200" {
		t.Fatalf("unexpected child query %q", queries[1])
	}
}

func TestCreateCategoryBody(t *testing.T) {
	var bodies []map[string]any
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(req.Body)
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		bodies = append(bodies, payload)
		return jsonResponse(http.StatusCreated, `{"id": 55, "name": {"pt": "Café"}, "parent": null}`), nil
	})

	if _, err := client.CreateCategory(context.Background(), "Café", 0); err != nil {
		t.Fatalf("create root: %v", err)
	}
	if _, err := client.CreateCategory(context.Background(), "Moído", 55); err != nil {
		t.Fatalf("create child: %v", err)
	}

	if bodies[0]["parent"] != nil {
		t.Fatalf("root create must send null parent, got %v", bodies[0]["parent"])
	}
	name := bodies[0]["name"].(map[string]any)
	if name["pt"] != "Café" {
		t.Fatalf("unexpected name %v", name)
	}
	if bodies[1]["parent"] != float64(55) {
		t.Fatalf("unexpected parent %v", bodies[1]["parent"])
	}
}

func TestUpdateVariantSendsOnlyStock(t *testing.T) {
	var payload map[string]any
	var method string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		method = req.Method
		raw, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(raw, &payload)
		return jsonResponse(http.StatusOK, `{"id": 7, "stock": 3}`), nil
	})
	stock := 3
	variant, err := client.UpdateVariant(context.Background(), 42, 7, VariantInput{Stock: &stock})
	if err != nil {
		t.Fatalf("update variant: %v", err)
	}
	if method != http.MethodPut {
		t.Fatalf("expected PUT, got %s", method)
	}
	if len(payload) != 1 || payload["stock"] != float64(3) {
		t.Fatalf("unexpected payload %v", payload)
	}
	if variant.Stock.OrZero() != 3 {
		t.Fatalf("unexpected stock %+v", variant.Stock)
	}
}

func TestProductInputWithoutVariantsAndImages(t *testing.T) {
	in := ProductInput{
		Name:     map[string]string{"pt": "x"},
		Variants: []VariantInput{{SKU: "a"}},
		Images:   []ImageInput{{Src: "http://img"}},
	}
	out := in.WithoutVariantsAndImages()
	if out.Variants != nil || out.Images != nil {
		t.Fatalf("expected variants and images stripped")
	}
	if len(in.Variants) != 1 {
		t.Fatalf("original must be untouched")
	}
}
