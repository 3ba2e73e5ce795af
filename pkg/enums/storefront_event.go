package enums

import "strings"

// StorefrontEventName is the event column of the storefront audit table.
// Remote notifications use the remote/ prefix, locally initiated changes local/.
type StorefrontEventName string

const (
	EventRemoteProductDeleted StorefrontEventName = "remote/product_deleted"
	EventRemoteRejected       StorefrontEventName = "remote/rejected_signature"
	EventLocalProductCreated  StorefrontEventName = "local/product_created"
	EventLocalProductUpdated  StorefrontEventName = "local/product_updated"
	EventLocalVariantCreated  StorefrontEventName = "local/variant_created"
	EventLocalVariantUpdated  StorefrontEventName = "local/variant_updated"
	EventLocalVariantDeleted  StorefrontEventName = "local/variant_deleted"
	EventLocalProductDeleted  StorefrontEventName = "local/product_deleted"
)

const ignoredEventPrefix = "remote/ignored_"

// MaxEventNameLength is the width of the audit event column.
const MaxEventNameLength = 80

// IgnoredEvent returns the audit name for an unhandled remote event type. The
// sender controls the type, so it is reduced to [a-z0-9/_.:-] and cut to fit
// the event column; the delivery body keeps the original.
func IgnoredEvent(remoteType string) StorefrontEventName {
	t := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == '/', r == '_', r == '.', r == ':', r == '-':
			return r
		case r == ' ' || r == '\t':
			return '_'
		}
		return -1
	}, strings.TrimSpace(remoteType))
	if t == "" {
		t = "unknown"
	}
	if room := MaxEventNameLength - len(ignoredEventPrefix); len(t) > room {
		t = t[:room]
	}
	return StorefrontEventName(ignoredEventPrefix + t)
}

// IsIgnored reports whether the name records an acknowledged but unhandled event.
func (n StorefrontEventName) IsIgnored() bool {
	return strings.HasPrefix(string(n), ignoredEventPrefix)
}

func (n StorefrontEventName) String() string {
	return string(n)
}
