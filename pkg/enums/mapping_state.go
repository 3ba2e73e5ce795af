package enums

// MappingState is the lifecycle position of a mapping record. It is derived
// from the stored ids and error, never persisted.
type MappingState string

const (
	MappingStateUnlinked        MappingState = "UNLINKED"
	MappingStateLinked          MappingState = "LINKED"
	MappingStateOrphanedVariant MappingState = "ORPHANED_VARIANT"
	MappingStateOrphanedProduct MappingState = "ORPHANED_PRODUCT"
	MappingStateRelinked        MappingState = "RELINKED"
	MappingStateRemoved         MappingState = "REMOVED"
)

// IsOrphaned reports whether the remote counterpart of the record disappeared.
func (s MappingState) IsOrphaned() bool {
	return s == MappingStateOrphanedVariant || s == MappingStateOrphanedProduct
}

func (s MappingState) String() string {
	return string(s)
}
