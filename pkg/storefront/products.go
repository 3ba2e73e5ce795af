package storefront

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
)

// GetProduct fetches a product with its variants.
func (c *Client) GetProduct(ctx context.Context, productID int64) (*Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d", productID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchBySKU returns products carrying a variant with sku. The platform
// answers 404 when nothing matches; that is an empty result here.
func (c *Client) SearchBySKU(ctx context.Context, sku string) ([]Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	var out []Product
	err := c.do(ctx, http.MethodGet, "/products", map[string]string{"sku": sku}, nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	return out, err
}

// ListProducts returns one page of products. A 404 past the last page is an
// empty page.
func (c *Client) ListProducts(ctx context.Context, page, perPage int) ([]Product, error) {
	var out []Product
	err := c.do(ctx, http.MethodGet, "/products", pageQuery(page, perPage), nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	return out, err
}

func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodPost, "/products", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, productID int64, in ProductInput) (*Product, error) {
	var out Product
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/products/%d", productID), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, productID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/products/%d", productID), nil, nil, nil)
}

func (c *Client) CreateVariant(ctx context.Context, productID int64, in VariantInput) (*Variant, error) {
	var out Variant
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/products/%d/variants", productID), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateVariant(ctx context.Context, productID, variantID int64, in VariantInput) (*Variant, error) {
	var out Variant
	path := fmt.Sprintf("/products/%d/variants/%d", productID, variantID)
	if err := c.do(ctx, http.MethodPut, path, nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteVariant(ctx context.Context, productID, variantID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/products/%d/variants/%d", productID, variantID), nil, nil, nil)
}

func pageQuery(page, perPage int) map[string]string {
	if page < 1 {
		page = 1
	}
	q := map[string]string{"page": strconv.Itoa(page)}
	if perPage > 0 {
		q["per_page"] = strconv.Itoa(perPage)
	}
	return q
}
