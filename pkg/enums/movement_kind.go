package enums

import "fmt"

// MovementKind identifies the stock effect of a sale line.
type MovementKind string

const (
	MovementKindSale   MovementKind = "VENDA"
	MovementKindCancel MovementKind = "CANCEL"
)

var validMovementKinds = []MovementKind{
	MovementKindSale,
	MovementKindCancel,
}

func (m MovementKind) IsValid() bool {
	for _, candidate := range validMovementKinds {
		if candidate == m {
			return true
		}
	}
	return false
}

// Delta returns the signed stock delta for qty units of this movement.
func (m MovementKind) Delta(qty int) int {
	if m == MovementKindCancel {
		return qty
	}
	return -qty
}

func ParseMovementKind(value string) (MovementKind, error) {
	for _, candidate := range validMovementKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement kind %q", value)
}
