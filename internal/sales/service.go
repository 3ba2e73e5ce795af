// Package sales ingests local sale lines. Timestamps are validated here so the
// stock sync can rely on a real temporal column.
package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/catalogsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
)

// RecordInput is one sale line as sent by the point of sale.
type RecordInput struct {
	SaleID     string `json:"sale_id" validate:"required,max=64"`
	LineID     string `json:"line_id" validate:"required,max=64"`
	GTIN       string `json:"gtin" validate:"required,max=60"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
	OccurredAt string `json:"occurred_at,omitempty"`
	Date       string `json:"date,omitempty"`
	Time       string `json:"time,omitempty"`
	Canceled   bool   `json:"canceled"`
	CanceledAt string `json:"canceled_at,omitempty"`
}

// Service defines sale ingestion operations.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*models.SaleLine, error)
	ListSince(ctx context.Context, cutoff time.Time) ([]models.SaleLine, error)
}

type service struct {
	repo Repository
	loc  *time.Location
}

// NewService wires the sales service. Dates without an offset are read in loc.
func NewService(repo Repository, loc *time.Location) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("sales repository required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &service{repo: repo, loc: loc}, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.SaleLine, error) {
	input.SaleID = strings.TrimSpace(input.SaleID)
	input.LineID = strings.TrimSpace(input.LineID)
	input.GTIN = strings.TrimSpace(input.GTIN)

	details := map[string]string{}
	if input.SaleID == "" {
		details["sale_id"] = "is required"
	}
	if input.LineID == "" {
		details["line_id"] = "is required"
	}
	if input.GTIN == "" {
		details["gtin"] = "is required"
	}
	if input.Quantity <= 0 {
		details["quantity"] = "must be positive"
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid sale line").WithDetails(details)
	}

	occurred, err := ParseOccurredAt(input.OccurredAt, input.Date, input.Time, s.loc)
	if err != nil {
		return nil, err
	}

	line := &models.SaleLine{
		SaleID:     input.SaleID,
		LineID:     input.LineID,
		GTIN:       input.GTIN,
		Quantity:   input.Quantity,
		OccurredAt: occurred,
		Canceled:   input.Canceled,
	}
	if input.Canceled {
		canceledAt := time.Now().UTC()
		if strings.TrimSpace(input.CanceledAt) != "" {
			canceledAt, err = ParseOccurredAt(input.CanceledAt, "", "", s.loc)
			if err != nil {
				return nil, err
			}
		}
		line.CanceledAt = &canceledAt
	}

	if err := s.repo.Upsert(ctx, line); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store sale line")
	}
	stored, err := s.repo.FindByLineID(ctx, line.LineID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload sale line")
	}
	return stored, nil
}

func (s *service) ListSince(ctx context.Context, cutoff time.Time) ([]models.SaleLine, error) {
	lines, err := s.repo.ListSince(ctx, cutoff)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list sale lines")
	}
	return lines, nil
}
