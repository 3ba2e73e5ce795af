// Package ledger appends and reads the storefront event audit log. Rows are
// never updated after insert.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	"github.com/angelmondragon/catalogsync/pkg/pagination"
)

// Service defines operations that record storefront audit events.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*models.StorefrontEvent, error)
	List(ctx context.Context, filter Filter) ([]models.StorefrontEvent, *pagination.Cursor, error)
}

type service struct {
	repo Repository
}

// RecordInput captures the data of one audit row. Payload may be any JSON
// encodable value or raw bytes; raw bytes that are not valid JSON are stored
// as a JSON string.
type RecordInput struct {
	Event           enums.StorefrontEventName
	RemoteProductID *int64
	RemoteVariantID *int64
	LocalID         *int64
	SignatureValid  bool
	Payload         any
}

// NewService wires an audit service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.StorefrontEvent, error) {
	if strings.TrimSpace(string(input.Event)) == "" {
		return nil, fmt.Errorf("event name is required")
	}
	if len(input.Event) > enums.MaxEventNameLength {
		return nil, fmt.Errorf("event name exceeds %d bytes", enums.MaxEventNameLength)
	}
	payload, err := encodePayload(input.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode audit payload: %w", err)
	}

	event := &models.StorefrontEvent{
		Event:           input.Event,
		RemoteProductID: positive(input.RemoteProductID),
		RemoteVariantID: positive(input.RemoteVariantID),
		LocalID:         positive(input.LocalID),
		SignatureValid:  input.SignatureValid,
		Payload:         payload,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) List(ctx context.Context, filter Filter) ([]models.StorefrontEvent, *pagination.Cursor, error) {
	return s.repo.List(ctx, filter)
}

func encodePayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return rawOrString(p)
	case []byte:
		return rawOrString(p)
	default:
		return json.Marshal(p)
	}
}

func rawOrString(b []byte) (json.RawMessage, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if json.Valid(b) {
		return json.RawMessage(b), nil
	}
	return json.Marshal(string(b))
}

func positive(v *int64) *int64 {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}
