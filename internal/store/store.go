// Package store persists applications, narratives and interviews,
// including each interview's co-pilot session state.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"maps"
	"time"

	"jobcoach/internal/errors"
	"jobcoach/internal/types"
)

// ErrNotFound is wrapped by every "record does not exist" error.
var ErrNotFound = stderrors.New("record not found")

// Store is the persistence interface used by the co-pilot service and the
// HTTP server.
type Store interface {
	GetApplication(ctx context.Context, id string) (*types.Application, error)
	PutApplication(ctx context.Context, app *types.Application) error
	GetNarrative(ctx context.Context, id string) (*types.Narrative, error)
	PutNarrative(ctx context.Context, n *types.Narrative) error
	GetInterview(ctx context.Context, id string) (*types.Interview, error)
	PutInterview(ctx context.Context, iv *types.Interview) error

	// PatchInterview applies patch to the stored interview atomically and
	// returns the updated record.
	PatchInterview(ctx context.Context, id string, patch types.InterviewPatch) (*types.Interview, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Stats counts stored records.
type Stats struct {
	Driver       string `json:"driver"`
	Applications int    `json:"applications"`
	Narratives   int    `json:"narratives"`
	Interviews   int    `json:"interviews"`
}

// Config selects and configures a store implementation.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config, logger *errors.Logger) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.Path, cfg.BusyTimeout, logger)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unknown storage driver %q", cfg.Driver), nil)
	}
}

// Driver names.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

func notFound(kind, id string) error {
	return errors.NewNotFoundError(errors.ErrCodeRecordNotFound,
		fmt.Sprintf("%s %q not found", kind, id), ErrNotFound).
		WithContext("kind", kind).
		WithContext("id", id)
}

func missingID(kind string) error {
	return errors.NewValidationError(errors.ErrCodeInvalidRequest,
		fmt.Sprintf("%s id is required", kind), nil)
}

func storageErr(op string, err error) error {
	return errors.NewStorageError(errors.ErrCodeStorageFailed, op, err)
}

// ApplyPatch returns a copy of iv with patch merged in. The layout is
// replaced when present; widget data and metadata are replaced per widget;
// notes and strategic opening are replaced when set; prep outline fields
// are merged key by key. iv is not modified. A patch that changes nothing
// is rejected.
func ApplyPatch(iv *types.Interview, patch types.InterviewPatch, now time.Time) (*types.Interview, error) {
	if patch.IsEmpty() {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "patch changes nothing", nil)
	}
	out, err := clone(iv)
	if err != nil {
		return nil, err
	}

	if len(patch.Layout) > 0 {
		out.Copilot.Layout = bytes.Clone(patch.Layout)
	}
	if len(patch.WidgetData) > 0 {
		if out.Copilot.WidgetData == nil {
			out.Copilot.WidgetData = make(map[string]json.RawMessage, len(patch.WidgetData))
		}
		for id, raw := range patch.WidgetData {
			out.Copilot.WidgetData[id] = bytes.Clone(raw)
		}
	}
	if len(patch.WidgetMetadata) > 0 {
		if out.Copilot.WidgetMetadata == nil {
			out.Copilot.WidgetMetadata = make(map[string]json.RawMessage, len(patch.WidgetMetadata))
		}
		for id, raw := range patch.WidgetMetadata {
			out.Copilot.WidgetMetadata[id] = bytes.Clone(raw)
		}
	}
	if patch.Notes != nil {
		out.Notes = *patch.Notes
	}
	if patch.StrategicOpening != nil {
		out.StrategicOpening = *patch.StrategicOpening
	}
	if len(patch.PrepOutline) > 0 {
		outline, err := mergeOutline(out.PrepOutline, patch.PrepOutline)
		if err != nil {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "invalid prep outline fields", err)
		}
		out.PrepOutline = outline
	}

	out.UpdatedAt = now.UTC()
	return out, nil
}

func mergeOutline(current *types.PrepOutline, fields map[string]any) (*types.PrepOutline, error) {
	base := map[string]any{}
	if current != nil {
		raw, err := json.Marshal(current)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &base); err != nil {
			return nil, err
		}
	}
	maps.Copy(base, fields)

	raw, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var merged types.PrepOutline
	if err := dec.Decode(&merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// clone deep-copies a record through its JSON form.
func clone[T any](v *T) (*T, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to copy record: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to copy record: %w", err)
	}
	return &out, nil
}

// stamp sets the created and updated times for a write.
func stamp(created, updated *time.Time, now time.Time) {
	if created.IsZero() {
		*created = now.UTC()
	}
	*updated = now.UTC()
}
