package enums

import (
	"fmt"
	"strings"
)

// MappingKind describes how a local item is represented on the storefront.
type MappingKind string

const (
	MappingKindNormal  MappingKind = "NORMAL"
	MappingKindParent  MappingKind = "PARENT"
	MappingKindVariant MappingKind = "VARIANT"
)

var validMappingKinds = []MappingKind{
	MappingKindNormal,
	MappingKindParent,
	MappingKindVariant,
}

// IsValid reports whether the value matches the canonical mapping kind enum.
func (k MappingKind) IsValid() bool {
	for _, candidate := range validMappingKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func (k MappingKind) String() string {
	return string(k)
}

// Tag returns the published marker applied to local items of this kind.
func (k MappingKind) Tag() PublishedTag {
	switch k {
	case MappingKindParent:
		return PublishedTagParent
	case MappingKindVariant:
		return PublishedTagVariant
	default:
		return PublishedTagNormal
	}
}

// CarriesStock reports whether records of this kind hold remote stock.
func (k MappingKind) CarriesStock() bool {
	return k != MappingKindParent
}

// ParseMappingKind converts the raw string to MappingKind. Matching is case-insensitive.
func ParseMappingKind(value string) (MappingKind, error) {
	normalized := MappingKind(strings.ToUpper(strings.TrimSpace(value)))
	for _, candidate := range validMappingKinds {
		if candidate == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mapping kind %q", value)
}
