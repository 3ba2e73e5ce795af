// Package storefrontwebhook verifies, classifies and applies storefront webhook
// deliveries. Only product deletions mutate state; everything else is audited
// and acknowledged.
package storefrontwebhook

import (
	"context"

	"github.com/angelmondragon/catalogsync/internal/ledger"
	"github.com/angelmondragon/catalogsync/internal/mapping"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/metrics"
)

type mappingRemover interface {
	RemoveByRemoteProduct(ctx context.Context, productID int64) (*mapping.RemovalResult, error)
}

type ServiceParams struct {
	Mappings mappingRemover
	Audit    ledger.Service
	Secret   string
	// RequireSignature rejects deletions whose signature does not verify.
	RequireSignature bool
	Metrics          *metrics.SyncMetrics
	Logger           *logger.Logger
}

type Service struct {
	mappings         mappingRemover
	audit            ledger.Service
	secret           string
	requireSignature bool
	metrics          *metrics.SyncMetrics
	logg             *logger.Logger
}

// Result summarizes one handled delivery.
type Result struct {
	Event            enums.StorefrontEventName `json:"event"`
	Ignored          bool                      `json:"ignored"`
	SignatureValid   bool                      `json:"signature_valid"`
	RemovedProductID int64                     `json:"removed_product_id,omitempty"`
	RemovedLocalIDs  []int64                   `json:"removed_local_ids,omitempty"`
	TagFailures      int                       `json:"tag_failures,omitempty"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Mappings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mapping service required")
	}
	if params.Audit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit ledger required")
	}
	if params.Secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		mappings:         params.Mappings,
		audit:            params.Audit,
		secret:           params.Secret,
		requireSignature: params.RequireSignature,
		metrics:          params.Metrics,
		logg:             logg,
	}, nil
}

// Handle processes one delivery. raw must be the exact request body.
func (s *Service) Handle(ctx context.Context, raw []byte, signature string) (*Result, error) {
	valid := VerifySignature(s.secret, raw, signature)
	ev := ParseEvent(raw)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"webhook_event":   ev.Type,
		"signature_valid": valid,
	})

	if ev.Kind != KindProductDeleted {
		return s.ignore(ctx, ev, valid), nil
	}
	if ev.ProductID <= 0 {
		s.metrics.IncWebhookEvent("invalid", valid)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id missing from deletion payload")
	}
	ctx = s.logg.WithRemoteProductID(ctx, ev.ProductID)

	if !valid {
		if s.requireSignature {
			s.record(ctx, ledger.RecordInput{
				Event:           enums.EventRemoteRejected,
				RemoteProductID: &ev.ProductID,
				RemoteVariantID: &ev.VariantID,
				Payload:         ev.Raw,
			})
			s.metrics.IncWebhookEvent(string(enums.EventRemoteRejected), false)
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
		}
		s.logg.Warn(ctx, "applying product deletion with unverified signature")
	}

	return s.removeProduct(ctx, ev, valid)
}

func (s *Service) removeProduct(ctx context.Context, ev Event, valid bool) (*Result, error) {
	removal, err := s.mappings.RemoveByRemoteProduct(ctx, ev.ProductID)

	payload := map[string]any{
		"product_id": ev.ProductID,
		"variant_id": ev.VariantID,
	}
	var firstLocal *int64
	if removal != nil {
		payload["removed_local_ids"] = removal.LocalIDs
		payload["tag_failures"] = removal.TagFailures
		if len(removal.LocalIDs) > 0 {
			id := removal.LocalIDs[0]
			firstLocal = &id
		}
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.record(ctx, ledger.RecordInput{
		Event:           enums.EventRemoteProductDeleted,
		RemoteProductID: &ev.ProductID,
		RemoteVariantID: &ev.VariantID,
		LocalID:         firstLocal,
		SignatureValid:  valid,
		Payload:         payload,
	})
	s.metrics.IncWebhookEvent(string(enums.EventRemoteProductDeleted), valid)

	if err != nil {
		s.logg.Error(ctx, "failed to remove mappings for deleted product", err)
		return nil, err
	}
	if removal.TagFailures > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "tag_failures", removal.TagFailures), "product deletion applied with tag failures")
	}
	s.logg.Info(s.logg.WithField(ctx, "removed", len(removal.LocalIDs)), "storefront product deletion applied")

	return &Result{
		Event:            enums.EventRemoteProductDeleted,
		SignatureValid:   valid,
		RemovedProductID: ev.ProductID,
		RemovedLocalIDs:  removal.LocalIDs,
		TagFailures:      removal.TagFailures,
	}, nil
}

func (s *Service) ignore(ctx context.Context, ev Event, valid bool) *Result {
	name := enums.IgnoredEvent(ev.Type)
	if ev.ParseErr != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", ev.ParseErr.Error()), "webhook body could not be parsed")
	}
	s.record(ctx, ledger.RecordInput{
		Event:           name,
		RemoteProductID: &ev.ProductID,
		RemoteVariantID: &ev.VariantID,
		SignatureValid:  valid,
		Payload:         ev.Raw,
	})
	s.metrics.IncWebhookEvent(string(name), valid)
	return &Result{Event: name, Ignored: true, SignatureValid: valid}
}

// record appends an audit row. Failures are logged; the delivery is still acked.
func (s *Service) record(ctx context.Context, in ledger.RecordInput) {
	if _, err := s.audit.Record(ctx, in); err != nil {
		s.logg.Error(ctx, "failed to append webhook audit row", err)
	}
}
