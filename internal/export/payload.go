package export

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/catalogsync/internal/catalog"
	"github.com/angelmondragon/catalogsync/internal/categories"
	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/storefront"
)

const (
	fallbackName        = "Produto sem nome"
	fallbackDescription = "Produto sem descrição"
	fallbackValue       = "Variante"
	defaultAttribute    = "Variação"
)

var (
	htmlTag     = regexp.MustCompile(`<[^>]*>`)
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
	dashRun     = regexp.MustCompile(`-+`)
)

// identifiers are the external keys of one exported record.
type identifiers struct {
	SKU     string
	Barcode string
}

func gtinOf(p *models.Product) string {
	if p == nil || p.GTIN == nil {
		return ""
	}
	return strings.TrimSpace(*p.GTIN)
}

func fallbackSKU(localID int64) string {
	return "INT-" + strconv.FormatInt(localID, 10)
}

// normalIdentifiers: sku is the gtin or INT-<id>, barcode is the gtin.
func normalIdentifiers(p *models.Product) identifiers {
	gtin := gtinOf(p)
	sku := gtin
	if sku == "" {
		sku = fallbackSKU(p.LocalID)
	}
	return identifiers{SKU: sku, Barcode: gtin}
}

// parentIdentifiers carry no barcode; each child has its own.
func parentIdentifiers(p *models.Product) identifiers {
	ids := normalIdentifiers(p)
	ids.Barcode = ""
	return ids
}

// variantIdentifiers inherit the parent sku.
func variantIdentifiers(parent, child *models.Product) identifiers {
	return identifiers{SKU: parentIdentifiers(parent).SKU, Barcode: gtinOf(child)}
}

// Handle builds the storefront url slug of a product name.
func Handle(text string) string {
	s := strings.ReplaceAll(categories.Normalize(text), " ", "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = dashRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// PlainText strips markup and collapses whitespace.
func PlainText(value string) string {
	if value == "" {
		return ""
	}
	s := htmlTag.ReplaceAllString(value, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

func description(p *models.Product) string {
	if p.DetailedDescription != nil {
		if d := PlainText(*p.DetailedDescription); d != "" {
			return d
		}
	}
	if d := PlainText(p.Description); d != "" {
		return d
	}
	return fallbackDescription
}

func productInput(p *models.Product, lang string, categoryIDs []int64) storefront.ProductInput {
	name := strings.TrimSpace(p.Description)
	if name == "" {
		name = fallbackName
	}
	slug := Handle(p.Description)
	if slug == "" {
		slug = strconv.FormatInt(p.LocalID, 10)
	}
	published := true
	return storefront.ProductInput{
		Name:        map[string]string{lang: name},
		Description: map[string]string{lang: description(p)},
		Handle:      map[string]string{lang: slug},
		Categories:  categoryIDs,
		Published:   &published,
	}
}

func variantInput(p *models.Product, ids identifiers, lang, value string) storefront.VariantInput {
	stock := 0
	if p.Stock != nil {
		stock = *p.Stock
	}
	managed := true
	in := storefront.VariantInput{
		SKU:             ids.SKU,
		Barcode:         ids.Barcode,
		Price:           decimalPtr(p.Price),
		Stock:           &stock,
		StockManagement: &managed,
		Weight:          decimalPtr(p.Weight),
		Width:           decimalPtr(p.Width),
		Height:          decimalPtr(p.Height),
		Depth:           decimalPtr(p.Length),
	}
	if value != "" {
		in.Values = []map[string]string{{lang: value}}
	}
	return in
}

func decimalPtr(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}

// attributeMatrix is the single variation attribute of a parent and the
// value of each child, in grade order.
type attributeMatrix struct {
	Attribute string
	Values    []string
}

func buildMatrix(children []catalog.Child) attributeMatrix {
	m := attributeMatrix{Attribute: defaultAttribute, Values: make([]string, len(children))}
	for _, c := range children {
		if label := capitalize(c.Variant.Variation); label != "" {
			m.Attribute = label
			break
		}
	}
	for i, c := range children {
		value := capitalize(c.Variant.Characteristic)
		if value == "" {
			value = capitalize(c.Variant.Variation)
		}
		if value == "" {
			value = capitalize(&c.Product.Description)
		}
		if value == "" {
			value = fallbackValue
		}
		m.Values[i] = value
	}
	return m
}

func capitalize(v *string) string {
	if v == nil {
		return ""
	}
	s := strings.ToLower(strings.Join(strings.Fields(*v), " "))
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
