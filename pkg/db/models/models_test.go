package models

import (
	"testing"

	"github.com/angelmondragon/catalogsync/pkg/enums"
)

func TestStorefrontMappingState(t *testing.T) {
	pid, vid := int64(42), int64(7)
	errMsg := "variant removed remotely"

	tests := []struct {
		name string
		m    *StorefrontMapping
		want enums.MappingState
	}{
		{name: "nil", m: nil, want: enums.MappingStateUnlinked},
		{name: "fresh", m: &StorefrontMapping{Kind: enums.MappingKindNormal}, want: enums.MappingStateUnlinked},
		{name: "linked normal", m: &StorefrontMapping{Kind: enums.MappingKindNormal, RemoteProductID: &pid}, want: enums.MappingStateLinked},
		{name: "linked variant", m: &StorefrontMapping{Kind: enums.MappingKindVariant, RemoteProductID: &pid, RemoteVariantID: &vid}, want: enums.MappingStateLinked},
		{name: "orphaned variant", m: &StorefrontMapping{Kind: enums.MappingKindVariant, RemoteProductID: &pid, LastError: &errMsg}, want: enums.MappingStateOrphanedVariant},
		{name: "orphaned product", m: &StorefrontMapping{Kind: enums.MappingKindParent, LastError: &errMsg}, want: enums.MappingStateOrphanedProduct},
		{name: "normal with error stays linked", m: &StorefrontMapping{Kind: enums.MappingKindNormal, RemoteProductID: &pid, LastError: &errMsg}, want: enums.MappingStateLinked},
	}
	for _, tt := range tests {
		if got := tt.m.State(); got != tt.want {
			t.Fatalf("%s: State() = %s, want %s", tt.name, got, tt.want)
		}
	}
}
