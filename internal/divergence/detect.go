// Package divergence compares local catalog values against the snapshot last
// sent to the storefront.
package divergence

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
)

// Field names a synchronizable value.
type Field string

const (
	FieldCategory Field = "category"
	FieldGroup    Field = "group"
	FieldSubgroup Field = "subgroup"
	FieldPrice    Field = "price"
	FieldStock    Field = "stock"
	FieldHeight   Field = "height"
	FieldWidth    Field = "width"
	FieldLength   Field = "length"
	FieldWeight   Field = "weight"
)

// Fields lists every compared field in emission order.
var Fields = []Field{
	FieldCategory,
	FieldGroup,
	FieldSubgroup,
	FieldPrice,
	FieldStock,
	FieldHeight,
	FieldWidth,
	FieldLength,
	FieldWeight,
}

// Snapshot is the set of synchronizable values for one item. Nil and invalid
// values compare as the empty string or zero.
type Snapshot struct {
	Category *string             `json:"category"`
	Group    *string             `json:"group"`
	Subgroup *string             `json:"subgroup"`
	Price    decimal.NullDecimal `json:"price"`
	Stock    *int                `json:"stock"`
	Height   decimal.NullDecimal `json:"height"`
	Width    decimal.NullDecimal `json:"width"`
	Length   decimal.NullDecimal `json:"length"`
	Weight   decimal.NullDecimal `json:"weight"`
}

// Item is a single field mismatch.
type Item struct {
	Field       Field `json:"field"`
	LocalValue  any   `json:"local_value"`
	RemoteValue any   `json:"remote_value"`
}

// FromProduct captures the current local truth.
func FromProduct(p *models.Product) Snapshot {
	if p == nil {
		return Snapshot{}
	}
	return Snapshot{
		Category: p.Category,
		Group:    p.Group,
		Subgroup: p.Subgroup,
		Price:    p.Price,
		Stock:    p.Stock,
		Height:   p.Height,
		Width:    p.Width,
		Length:   p.Length,
		Weight:   p.Weight,
	}
}

// FromMapping captures the values last sent to the storefront.
func FromMapping(m *models.StorefrontMapping) Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Category: m.SentCategory,
		Group:    m.SentGroup,
		Subgroup: m.SentSubgroup,
		Price:    m.SentPrice,
		Stock:    m.SentStock,
		Height:   m.SentHeight,
		Width:    m.SentWidth,
		Length:   m.SentLength,
		Weight:   m.SentWeight,
	}
}

// Detect returns the mismatches between local and sent in a fixed field
// order. Stock is never compared for parent items.
func Detect(local, sent Snapshot, kind enums.MappingKind) []Item {
	var items []Item

	addText := func(field Field, l, r *string) {
		lv, rv := text(l), text(r)
		if lv != rv {
			items = append(items, Item{Field: field, LocalValue: lv, RemoteValue: rv})
		}
	}
	addNumber := func(field Field, l, r decimal.NullDecimal) {
		lv, rv := number(l), number(r)
		if !lv.Equal(rv) {
			items = append(items, Item{Field: field, LocalValue: lv, RemoteValue: rv})
		}
	}

	addText(FieldCategory, local.Category, sent.Category)
	addText(FieldGroup, local.Group, sent.Group)
	addText(FieldSubgroup, local.Subgroup, sent.Subgroup)
	addNumber(FieldPrice, local.Price, sent.Price)

	if kind != enums.MappingKindParent {
		lv, rv := integer(local.Stock), integer(sent.Stock)
		if lv != rv {
			items = append(items, Item{Field: FieldStock, LocalValue: lv, RemoteValue: rv})
		}
	}

	addNumber(FieldHeight, local.Height, sent.Height)
	addNumber(FieldWidth, local.Width, sent.Width)
	addNumber(FieldLength, local.Length, sent.Length)
	addNumber(FieldWeight, local.Weight, sent.Weight)

	return items
}

func text(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func number(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}

func integer(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
