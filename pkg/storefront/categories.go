package storefront

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
)

// ListCategories returns one page of categories filtered by parentID. Zero
// omits the filter, so the page spans the whole tree; callers match on
// Category.Parent.
func (c *Client) ListCategories(ctx context.Context, parentID int64, page, perPage int) ([]Category, error) {
	q := pageQuery(page, perPage)
	q["language"] = c.language
	if parentID > 0 {
		q["parent_id"] = strconv.FormatInt(parentID, 10)
	}

	var out []Category
	err := c.do(ctx, http.MethodGet, "/categories", q, nil, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	return out, err
}

// CreateCategory creates name under parentID (zero for a root node). The name
// is sent as given, in the client language.
func (c *Client) CreateCategory(ctx context.Context, name string, parentID int64) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category name is required")
	}
	body := categoryInput{Name: map[string]string{c.language: name}}
	if parentID > 0 {
		body.Parent = &parentID
	}

	var out Category
	if err := c.do(ctx, http.MethodPost, "/categories", nil, body, &out); err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeMalformedPayload, "category create returned no id")
	}
	return &out, nil
}
