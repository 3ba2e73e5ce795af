package storefrontwebhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/catalogsync/pkg/storefront"
)

const EventProductDeleted = "product/deleted"

// Kind classifies a delivery.
type Kind string

const (
	KindProductDeleted Kind = "product_deleted"
	KindOther          Kind = "other"
	KindUnparsed       Kind = "unparsed"
)

// Event is a tolerant view of a webhook body. Bodies that do not decode keep
// their raw bytes and the parse error instead of failing the delivery.
type Event struct {
	Type      string
	Kind      Kind
	ProductID int64
	VariantID int64
	StoreID   int64
	Raw       json.RawMessage
	ParseErr  error
}

type envelope struct {
	Event     string        `json:"event"`
	ID        storefront.ID `json:"id"`
	VariantID storefront.ID `json:"variant_id"`
	StoreID   storefront.ID `json:"store_id"`
}

// ParseEvent classifies raw. It never fails; check Kind and ParseErr.
func ParseEvent(raw []byte) Event {
	ev := Event{Raw: json.RawMessage(raw)}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		ev.Kind = KindUnparsed
		ev.Type = string(KindUnparsed)
		ev.ParseErr = fmt.Errorf("decode webhook body: %w", err)
		return ev
	}

	ev.Type = strings.ToLower(strings.TrimSpace(env.Event))
	ev.ProductID = env.ID.Int64()
	ev.VariantID = env.VariantID.Int64()
	ev.StoreID = env.StoreID.Int64()

	switch ev.Type {
	case EventProductDeleted:
		ev.Kind = KindProductDeleted
	case "":
		ev.Type = "unknown"
		ev.Kind = KindOther
	default:
		ev.Kind = KindOther
	}
	return ev
}
