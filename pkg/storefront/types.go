package storefront

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var jsonNull = []byte("null")

// ID decodes identifiers sent either as numbers or numeric strings. Null and
// empty strings decode to zero.
type ID int64

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		*id = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*id = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("storefront id %q: %w", s, err)
		}
		*id = ID(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("storefront id %s: %w", n, err)
	}
	*id = ID(v)
	return nil
}

// Int64 returns the plain value.
func (id ID) Int64() int64 { return int64(id) }

// FlexString accepts strings, numbers and null. Barcodes are the usual case:
// the platform echoes them back as numbers when they look numeric.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("storefront string field: %w", err)
	}
	*s = FlexString(n.String())
	return nil
}

func (s FlexString) String() string { return string(s) }

// OptionalInt models fields such as stock where null means "not tracked".
type OptionalInt struct {
	Value int
	Valid bool
}

func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		*o = OptionalInt{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*o = OptionalInt{}
			return nil
		}
		data = []byte(s)
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("storefront integer field %s: %w", data, err)
	}
	*o = OptionalInt{Value: int(d.IntPart()), Valid: true}
	return nil
}

func (o OptionalInt) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return jsonNull, nil
	}
	return []byte(strconv.Itoa(o.Value)), nil
}

// OrZero returns the value, treating untracked as zero.
func (o OptionalInt) OrZero() int {
	if !o.Valid {
		return 0
	}
	return o.Value
}

// LocalizedText holds per-locale values. A bare string decodes under the empty
// locale key.
type LocalizedText map[string]string

func (t *LocalizedText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		*t = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = LocalizedText{"": s}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("storefront localized field: %w", err)
	}
	*t = m
	return nil
}

// Get returns the value for lang, then any non-empty value.
func (t LocalizedText) Get(lang string) string {
	if v, ok := t[lang]; ok && v != "" {
		return v
	}
	if v, ok := t[""]; ok && v != "" {
		return v
	}
	for _, v := range t {
		if v != "" {
			return v
		}
	}
	return ""
}

// Product is the subset of the remote product resource the engine reads.
type Product struct {
	ID         ID            `json:"id"`
	Name       LocalizedText `json:"name"`
	Variants   []Variant     `json:"variants"`
	Images     []Image       `json:"images"`
	Categories []Category    `json:"categories"`
	Published  bool          `json:"published"`
}

// Variant is a sellable unit of a remote product.
type Variant struct {
	ID        ID                  `json:"id"`
	ProductID ID                  `json:"product_id"`
	SKU       FlexString          `json:"sku"`
	Barcode   FlexString          `json:"barcode"`
	Stock     OptionalInt         `json:"stock"`
	Price     decimal.NullDecimal `json:"price"`
	Position  int                 `json:"position"`
}

// Category is a node of the remote category tree. Parent is zero for roots.
type Category struct {
	ID     ID            `json:"id"`
	Name   LocalizedText `json:"name"`
	Parent ID            `json:"parent"`
}

// Image is a product image.
type Image struct {
	ID        ID     `json:"id"`
	ProductID ID     `json:"product_id"`
	Src       string `json:"src"`
	Position  int    `json:"position"`
}

// Webhook is a remote event subscription.
type Webhook struct {
	ID    ID     `json:"id"`
	Event string `json:"event"`
	URL   string `json:"url"`
}

// ProductInput is the body for product create and update.
type ProductInput struct {
	Name        map[string]string   `json:"name,omitempty"`
	Description map[string]string   `json:"description,omitempty"`
	Handle      map[string]string   `json:"handle,omitempty"`
	Categories  []int64             `json:"categories,omitempty"`
	Attributes  []map[string]string `json:"attributes,omitempty"`
	Variants    []VariantInput      `json:"variants,omitempty"`
	Images      []ImageInput        `json:"images,omitempty"`
	Published   *bool               `json:"published,omitempty"`
}

// WithoutVariantsAndImages returns a copy suitable for updating an existing
// product; the platform rejects variant and image lists on PUT.
func (p ProductInput) WithoutVariantsAndImages() ProductInput {
	p.Variants = nil
	p.Images = nil
	return p
}

// VariantInput is the body for variant create and update. Nil fields are
// left untouched remotely.
type VariantInput struct {
	SKU             string              `json:"sku,omitempty"`
	Barcode         string              `json:"barcode,omitempty"`
	Price           *decimal.Decimal    `json:"price,omitempty"`
	Stock           *int                `json:"stock,omitempty"`
	StockManagement *bool               `json:"stock_management,omitempty"`
	Weight          *decimal.Decimal    `json:"weight,omitempty"`
	Width           *decimal.Decimal    `json:"width,omitempty"`
	Height          *decimal.Decimal    `json:"height,omitempty"`
	Depth           *decimal.Decimal    `json:"depth,omitempty"`
	Values          []map[string]string `json:"values,omitempty"`
}

// ImageInput is the body for image create.
type ImageInput struct {
	Src      string `json:"src"`
	Position int    `json:"position,omitempty"`
}

type categoryInput struct {
	Name   map[string]string `json:"name"`
	Parent *int64            `json:"parent"`
}

type webhookInput struct {
	Event string `json:"event"`
	URL   string `json:"url"`
}

type imagePositionInput struct {
	Position int `json:"position"`
}
