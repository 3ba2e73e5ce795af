package enums

import "fmt"

// PublishedTag is the marker stored on a local item while it is live on the storefront.
type PublishedTag string

const (
	PublishedTagNormal  PublishedTag = "ENS"
	PublishedTagParent  PublishedTag = "ENSP"
	PublishedTagVariant PublishedTag = "ENSV"
)

var validPublishedTags = []PublishedTag{
	PublishedTagNormal,
	PublishedTagParent,
	PublishedTagVariant,
}

func (t PublishedTag) IsValid() bool {
	for _, candidate := range validPublishedTags {
		if candidate == t {
			return true
		}
	}
	return false
}

func (t PublishedTag) String() string {
	return string(t)
}

func ParsePublishedTag(value string) (PublishedTag, error) {
	for _, candidate := range validPublishedTags {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid published tag %q", value)
}
