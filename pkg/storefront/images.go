package storefront

import (
	"context"
	"fmt"
	"net/http"
)

func (c *Client) ListImages(ctx context.Context, productID int64) ([]Image, error) {
	var out []Image
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d/images", productID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateImage(ctx context.Context, productID int64, in ImageInput) (*Image, error) {
	var out Image
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/products/%d/images", productID), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateImagePosition moves an image; the platform shifts the others.
func (c *Client) UpdateImagePosition(ctx context.Context, productID, imageID int64, position int) (*Image, error) {
	var out Image
	path := fmt.Sprintf("/products/%d/images/%d", productID, imageID)
	if err := c.do(ctx, http.MethodPut, path, nil, imagePositionInput{Position: position}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteImage(ctx context.Context, productID, imageID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/products/%d/images/%d", productID, imageID), nil, nil, nil)
}
