// Package images mirrors local image edits onto the storefront product of a
// mapped item.
package images

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/angelmondragon/catalogsync/pkg/db/models"
	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/storefront"
)

// ActionType names an image edit.
type ActionType string

const (
	ActionAdd     ActionType = "add"
	ActionDelete  ActionType = "delete"
	ActionReorder ActionType = "reorder"
)

// Action is one image edit. Add uses URL and an optional Position; delete
// uses Position; reorder either moves From to To or assigns Positions to the
// current images in position order.
type Action struct {
	Type      ActionType `json:"type" validate:"required,oneof=add delete reorder"`
	URL       string     `json:"url,omitempty"`
	Position  int        `json:"position,omitempty"`
	From      int        `json:"from,omitempty"`
	To        int        `json:"to,omitempty"`
	Positions []int      `json:"positions,omitempty"`
}

// Result reports what changed remotely.
type Result struct {
	RemoteProductID int64  `json:"remote_product_id"`
	Action          string `json:"action"`
	CreatedID       *int64 `json:"created_id,omitempty"`
	DeletedID       *int64 `json:"deleted_id,omitempty"`
	Moved           int    `json:"moved,omitempty"`
}

type mappingReader interface {
	Get(ctx context.Context, localID int64) (*models.StorefrontMapping, error)
}

type imageClient interface {
	ListImages(ctx context.Context, productID int64) ([]storefront.Image, error)
	CreateImage(ctx context.Context, productID int64, in storefront.ImageInput) (*storefront.Image, error)
	UpdateImagePosition(ctx context.Context, productID, imageID int64, position int) (*storefront.Image, error)
	DeleteImage(ctx context.Context, productID, imageID int64) error
}

// Service applies image actions.
type Service struct {
	mappings mappingReader
	remote   imageClient
	logg     *logger.Logger
}

func NewService(mappings mappingReader, remote imageClient, logg *logger.Logger) (*Service, error) {
	if mappings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mapping reader required")
	}
	if remote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "storefront client required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{mappings: mappings, remote: remote, logg: logg}, nil
}

// Sync applies action to the storefront product of localID.
func (s *Service) Sync(ctx context.Context, localID int64, action Action) (*Result, error) {
	if err := validate(action); err != nil {
		return nil, err
	}
	m, err := s.mappings.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if m.RemoteProductID == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "local item %d is not linked to a storefront product", localID)
	}
	productID := *m.RemoteProductID
	ctx = s.logg.WithRemoteProductID(s.logg.WithLocalID(ctx, localID), productID)

	result := &Result{RemoteProductID: productID, Action: string(action.Type)}
	switch action.Type {
	case ActionAdd:
		in := storefront.ImageInput{Src: strings.TrimSpace(action.URL)}
		if action.Position > 0 {
			in.Position = action.Position
		}
		created, err := s.remote.CreateImage(ctx, productID, in)
		if err != nil {
			return nil, err
		}
		id := created.ID.Int64()
		result.CreatedID = &id

	case ActionDelete:
		current, err := s.sorted(ctx, productID)
		if err != nil {
			return nil, err
		}
		var target *storefront.Image
		for i := range current {
			if current[i].Position == action.Position {
				target = &current[i]
				break
			}
		}
		if target == nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeRemoteNotFound, "no storefront image at position %d", action.Position)
		}
		if err := s.remote.DeleteImage(ctx, productID, target.ID.Int64()); err != nil {
			return nil, err
		}
		id := target.ID.Int64()
		result.DeletedID = &id

	case ActionReorder:
		current, err := s.sorted(ctx, productID)
		if err != nil {
			return nil, err
		}
		positions, err := targetPositions(action, len(current))
		if err != nil {
			return nil, err
		}
		moved, err := s.reorder(ctx, productID, current, positions)
		if err != nil {
			return nil, err
		}
		result.Moved = moved
	}

	s.logg.Info(s.logg.WithField(ctx, "action", string(action.Type)), "storefront images synced")
	return result, nil
}

func (s *Service) sorted(ctx context.Context, productID int64) ([]storefront.Image, error) {
	list, err := s.remote.ListImages(ctx, productID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	return list, nil
}

// reorder places images front to back. Each PUT inserts the image at its
// position and shifts the rest, so live tracks the remote order as it goes.
func (s *Service) reorder(ctx context.Context, productID int64, current []storefront.Image, positions []int) (int, error) {
	want := make([]int64, len(current))
	live := make([]int64, len(current))
	for i, img := range current {
		want[positions[i]-1] = img.ID.Int64()
		live[i] = img.ID.Int64()
	}

	moved := 0
	for p, id := range want {
		if live[p] == id {
			continue
		}
		if _, err := s.remote.UpdateImagePosition(ctx, productID, id, p+1); err != nil {
			return moved, err
		}
		moved++
		live = moveTo(live, id, p)
	}
	return moved, nil
}

func moveTo(ids []int64, id int64, idx int) []int64 {
	out := make([]int64, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	out = append(out[:idx], append([]int64{id}, out[idx:]...)...)
	return out
}

// targetPositions returns the new 1-based position of each current image.
func targetPositions(action Action, n int) ([]int, error) {
	if len(action.Positions) > 0 {
		if len(action.Positions) != n || !isPermutation(action.Positions) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "positions must reorder every current image").
				WithDetails(map[string]any{"images": n, "positions": action.Positions})
		}
		return action.Positions, nil
	}
	if action.From > n || action.To > n {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "product has %d images", n)
	}

	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i != action.From-1 {
			order = append(order, i)
		}
	}
	to := action.To - 1
	order = append(order[:to], append([]int{action.From - 1}, order[to:]...)...)

	positions := make([]int, n)
	for newIdx, oldIdx := range order {
		positions[oldIdx] = newIdx + 1
	}
	return positions, nil
}

func isPermutation(values []int) bool {
	seen := make([]bool, len(values)+1)
	for _, v := range values {
		if v < 1 || v > len(values) || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

func validate(a Action) error {
	details := map[string]any{}
	switch a.Type {
	case ActionAdd:
		u, err := url.Parse(strings.TrimSpace(a.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			details["url"] = "must be an absolute http(s) url"
		}
		if a.Position < 0 {
			details["position"] = "must not be negative"
		}
	case ActionDelete:
		if a.Position < 1 {
			details["position"] = "must be positive"
		}
	case ActionReorder:
		if len(a.Positions) == 0 && (a.From < 1 || a.To < 1) {
			details["positions"] = "provide positions or from and to"
		}
	default:
		details["type"] = "must be add, delete or reorder"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid image action").WithDetails(details)
	}
	return nil
}
