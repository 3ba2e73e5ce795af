package divergence

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/catalogsync/pkg/db/models"
	"github.com/angelmondragon/catalogsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/metrics"
)

const defaultBatchSize = 200

type localReader interface {
	Get(ctx context.Context, localID int64) (*models.Product, error)
}

type mappingStore interface {
	Get(ctx context.Context, localID int64) (*models.StorefrontMapping, error)
	SetNeedsUpdate(ctx context.Context, localID int64, value bool) error
	ListLinkedAfter(ctx context.Context, afterLocalID int64, limit int) ([]models.StorefrontMapping, error)
}

// Report is the divergence state of one mapped item.
type Report struct {
	LocalID     int64             `json:"local_id"`
	Kind        enums.MappingKind `json:"kind"`
	Items       []Item            `json:"items"`
	NeedsUpdate bool              `json:"needs_update"`
}

// Summary aggregates a RecheckAll pass.
type Summary struct {
	Checked  int           `json:"checked"`
	Diverged int           `json:"diverged"`
	Missing  int           `json:"missing_local"`
	Failed   int           `json:"failed"`
	ByField  map[Field]int `json:"by_field"`
}

// Service inspects and persists divergence for mapped items.
type Service struct {
	catalog   localReader
	mappings  mappingStore
	batchSize int
	metrics   *metrics.SyncMetrics
	logg      *logger.Logger
}

func NewService(catalog localReader, mappings mappingStore, m *metrics.SyncMetrics, logg *logger.Logger) (*Service, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if mappings == nil {
		return nil, fmt.Errorf("mapping store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{catalog: catalog, mappings: mappings, batchSize: defaultBatchSize, metrics: m, logg: logg}, nil
}

// Inspect computes the report of localID without persisting anything.
func (s *Service) Inspect(ctx context.Context, localID int64) (*Report, error) {
	m, err := s.mappings.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	product, err := s.catalog.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	return report(product, m), nil
}

// Recheck inspects localID and stores needs_update accordingly.
func (s *Service) Recheck(ctx context.Context, localID int64) (*Report, error) {
	r, err := s.Inspect(ctx, localID)
	if err != nil {
		return nil, err
	}
	if err := s.mappings.SetNeedsUpdate(ctx, localID, r.NeedsUpdate); err != nil {
		return nil, err
	}
	for _, item := range r.Items {
		s.metrics.IncDivergence(string(item.Field))
	}
	return r, nil
}

// RecheckAll walks every linked mapping in local id order. Per-item failures
// are counted and returned together; the walk continues past them.
func (s *Service) RecheckAll(ctx context.Context) (*Summary, error) {
	summary := &Summary{ByField: map[Field]int{}}
	var errs error
	var after int64

	for {
		if err := ctx.Err(); err != nil {
			return summary, multierr.Append(errs, err)
		}
		batch, err := s.mappings.ListLinkedAfter(ctx, after, s.batchSize)
		if err != nil {
			return summary, multierr.Append(errs, err)
		}
		for i := range batch {
			m := &batch[i]
			after = m.LocalID

			product, err := s.catalog.Get(ctx, m.LocalID)
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				summary.Missing++
				continue
			}
			if err != nil {
				summary.Failed++
				errs = multierr.Append(errs, fmt.Errorf("local item %d: %w", m.LocalID, err))
				continue
			}

			r := report(product, m)
			summary.Checked++
			if m.NeedsUpdate != r.NeedsUpdate {
				if err := s.mappings.SetNeedsUpdate(ctx, m.LocalID, r.NeedsUpdate); err != nil {
					summary.Failed++
					errs = multierr.Append(errs, fmt.Errorf("local item %d: %w", m.LocalID, err))
					continue
				}
			}
			if r.NeedsUpdate {
				summary.Diverged++
			}
			for _, item := range r.Items {
				summary.ByField[item.Field]++
				s.metrics.IncDivergence(string(item.Field))
			}
		}
		if len(batch) < s.batchSize {
			break
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"checked":  summary.Checked,
		"diverged": summary.Diverged,
		"missing":  summary.Missing,
		"failed":   summary.Failed,
	}), "divergence recheck finished")
	return summary, errs
}

func report(product *models.Product, m *models.StorefrontMapping) *Report {
	items := Detect(FromProduct(product), FromMapping(m), m.Kind)
	if items == nil {
		items = []Item{}
	}
	return &Report{
		LocalID:     m.LocalID,
		Kind:        m.Kind,
		Items:       items,
		NeedsUpdate: len(items) > 0,
	}
}
