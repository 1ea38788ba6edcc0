// Package copilot serves interview co-pilot sessions: it loads the
// stored interview with its application and narrative, rebuilds the
// widget grid, and persists edits and AI generations back through the
// store.
package copilot

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"jobcoach/internal/ai"
	"jobcoach/internal/errors"
	"jobcoach/internal/observability"
	"jobcoach/internal/store"
	"jobcoach/internal/types"
	"jobcoach/internal/widget"
)

// Generator produces AI content for a session. *ai.Services implements it.
type Generator interface {
	GenerateCheatSheet(ctx context.Context, input types.CheatSheetInput) (types.CheatSheet, *ai.TokenUsage, error)
	GeneratePrepOutline(ctx context.Context, input types.OutlineInput) (types.PrepOutline, *ai.TokenUsage, error)
	DraftAnswer(ctx context.Context, input types.AnswerInput) (types.AnswerDraft, *ai.TokenUsage, error)
}

// Config wires a Service.
type Config struct {
	Store    store.Store
	Registry *widget.RegistryHolder
	AI       Generator
	Metrics  *observability.Metrics
	Logger   *errors.Logger

	DefaultMode       widget.Mode
	DefaultBreakpoint widget.Breakpoint

	// Now is the clock used for lastUpdated stamps. Defaults to time.Now.
	Now func() time.Time
}

// Service implements the co-pilot session operations.
type Service struct {
	store    store.Store
	registry *widget.RegistryHolder
	ai       Generator
	metrics  *observability.Metrics
	logger   *errors.Logger
	mode     widget.Mode
	bp       widget.Breakpoint
	now      func() time.Time
}

// New creates a Service. Store and Registry are required.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "co-pilot service requires a store", nil)
	}
	if cfg.Registry == nil || cfg.Registry.Load() == nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "co-pilot service requires a widget registry", nil)
	}

	s := &Service{
		store:    cfg.Store,
		registry: cfg.Registry,
		ai:       cfg.AI,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		mode:     cfg.DefaultMode,
		bp:       cfg.DefaultBreakpoint,
		now:      cfg.Now,
	}
	if s.logger == nil {
		s.logger = errors.Discard()
	}
	if _, ok := widget.ParseMode(string(s.mode)); !ok {
		s.mode = widget.ModeLive
	}
	if _, ok := widget.ParseBreakpoint(string(s.bp)); !ok {
		s.bp = widget.LG
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// ViewOptions selects how a session is rendered. Zero fields fall back
// to the service defaults.
type ViewOptions struct {
	Mode       widget.Mode
	Breakpoint widget.Breakpoint
}

// Session is a loaded co-pilot session.
type Session struct {
	InterviewID string             `json:"interviewId"`
	View        widget.View        `json:"view"`
	Layout      widget.GridLayout  `json:"layout"`
	Widgets     widget.StateMap    `json:"widgets"`
	Report      widget.MergeReport `json:"layoutReport"`
	Warnings    []string           `json:"warnings,omitempty"`
}

// SaveRequest is a full session save from the client. Widgets absent
// from Widgets keep their current state; an absent layout keeps the
// stored one.
type SaveRequest struct {
	Layout  json.RawMessage               `json:"layout,omitempty"`
	Widgets map[string]widget.WidgetState `json:"widgets,omitempty"`
}

// session is the working state of one operation.
type session struct {
	reg       *widget.Registry
	interview *types.Interview
	wctx      *widget.Context
	layout    widget.GridLayout
	states    widget.StateMap
	report    widget.MergeReport
	warnings  []string
}

// load reads the interview and its related records and rebuilds the
// widget grid. A missing application or narrative is a warning, not an
// error; a missing interview is.
func (s *Service) load(ctx context.Context, interviewID string) (*session, error) {
	if interviewID == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidRequest, "interview id is required", nil)
	}

	iv, err := s.store.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, err
	}

	sess := &session{reg: s.registry.Load(), interview: iv}

	var app *types.Application
	if iv.ApplicationID != "" {
		app, err = s.store.GetApplication(ctx, iv.ApplicationID)
		if err != nil {
			if !stderrors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			sess.warn("application %s not found", iv.ApplicationID)
		}
	}

	var nar *types.Narrative
	if iv.NarrativeID != "" {
		nar, err = s.store.GetNarrative(ctx, iv.NarrativeID)
		if err != nil {
			if !stderrors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			sess.warn("narrative %s not found", iv.NarrativeID)
		}
	}

	sess.wctx = widget.BuildContext(app, iv, nar)
	if sess.wctx.AnalysisErr != nil {
		sess.warnErr("job analysis", sess.wctx.AnalysisErr)
	}

	persisted, err := widget.ParsePersisted(iv.Copilot)
	if err != nil {
		sess.warnErr("stored session", err)
	}

	layout, report := widget.MergeLayouts(sess.reg, persisted.Layout)
	sess.report = report

	states, err := widget.Hydrate(sess.reg, sess.wctx, persisted)
	hydrationErrs := sess.warnErr("widget state", err)

	sess.layout = widget.ApplyCollapsedState(sess.reg, layout, widget.CollapsedFlags(states))
	sess.states = states

	s.metrics.RecordLayoutRepairs(ctx, map[string]int{
		"unknown":     report.DroppedUnknown,
		"duplicate":   report.DroppedDuplicates,
		"breakpoint":  len(report.DroppedBreakpoints),
		"backfilled":  report.BackfilledFields,
		"appended":    report.AppendedDefaults,
		"undecodable": persisted.SkippedLayoutEntries,
	})
	s.metrics.RecordHydrationErrors(ctx, hydrationErrs)

	if report.Repaired() || persisted.SkippedLayoutEntries > 0 {
		s.logger.Debug("Stored layout repaired",
			"interview_id", interviewID,
			"dropped_unknown", report.DroppedUnknown,
			"dropped_duplicates", report.DroppedDuplicates,
			"appended_defaults", report.AppendedDefaults,
			"skipped_entries", persisted.SkippedLayoutEntries)
	}
	return sess, nil
}

func (sess *session) warn(format string, args ...any) {
	sess.warnings = append(sess.warnings, fmt.Sprintf(format, args...))
}

// warnErr records one warning per joined error and returns how many.
func (sess *session) warnErr(prefix string, err error) int {
	errs := flatten(err)
	for _, e := range errs {
		sess.warn("%s: %v", prefix, e)
	}
	return len(errs)
}

func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

func (s *Service) resolve(opts ViewOptions) (widget.Mode, widget.Breakpoint) {
	mode, bp := opts.Mode, opts.Breakpoint
	if _, ok := widget.ParseMode(string(mode)); !ok {
		mode = s.mode
	}
	if _, ok := widget.ParseBreakpoint(string(bp)); !ok {
		bp = s.bp
	}
	return mode, bp
}

func (s *Service) render(sess *session, opts ViewOptions) *Session {
	mode, bp := s.resolve(opts)
	return &Session{
		InterviewID: sess.interview.ID,
		View:        widget.BuildView(sess.reg, sess.states, sess.layout, bp, mode, s.now()),
		Layout:      sess.layout,
		Widgets:     sess.states,
		Report:      sess.report,
		Warnings:    sess.warnings,
	}
}

// persist writes payload to the interview.
func (s *Service) persist(ctx context.Context, interviewID string, payload widget.SessionPayload) error {
	patch, err := payload.Patch()
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInvalidFormat, "failed to build session patch", err)
	}
	if raw, err := json.Marshal(patch); err == nil {
		s.metrics.RecordPayloadSize(ctx, "patch", len(raw))
	}
	if _, err := s.store.PatchInterview(ctx, interviewID, patch); err != nil {
		return err
	}
	return nil
}

// track runs fn and counts it as a session operation.
func (s *Service) track(ctx context.Context, operation string, fn func() error) error {
	err := fn()
	s.metrics.RecordSessionOperation(ctx, operation, err == nil)
	return err
}

// Open loads the co-pilot session of an interview.
func (s *Service) Open(ctx context.Context, interviewID string, opts ViewOptions) (*Session, error) {
	var out *Session
	err := s.track(ctx, "open", func() error {
		sess, err := s.load(ctx, interviewID)
		if err != nil {
			return err
		}
		out = s.render(sess, opts)
		return nil
	})
	return out, err
}

// Save stores a full session from the client. The layout is repaired
// against the registry before it is stored; widget data is validated
// against each widget's data type.
func (s *Service) Save(ctx context.Context, interviewID string, req SaveRequest, opts ViewOptions) (*Session, error) {
	var out *Session
	err := s.track(ctx, "save", func() error {
		sess, err := s.load(ctx, interviewID)
		if err != nil {
			return err
		}

		if len(req.Layout) > 0 {
			pl, _, err := widget.ParsePersistedLayout(req.Layout)
			if err != nil {
				return errors.NewValidationError(errors.ErrCodeInvalidLayout, "layout is not a breakpoint map", err)
			}
			sess.layout, sess.report = widget.MergeLayouts(sess.reg, pl)
		}

		if err := s.applyWidgetStates(sess, req.Widgets); err != nil {
			return err
		}
		if _, err := sess.states.SyncChecklist(sess.reg); err != nil {
			return errors.NewInternalError(errors.ErrCodeInvalidWidgetData, "failed to derive live checklist", err)
		}
		sess.layout = widget.ApplyCollapsedState(sess.reg, sess.layout, widget.CollapsedFlags(sess.states))

		payload, err := widget.Serialize(sess.reg, sess.states, sess.layout)
		if err != nil {
			return errors.NewInternalError(errors.ErrCodeInvalidWidgetData, "failed to serialize session", err)
		}
		if err := s.persist(ctx, interviewID, payload); err != nil {
			return err
		}

		s.logger.Info("Co-pilot session saved", "interview_id", interviewID, "widgets", len(req.Widgets))
		out = s.render(sess, opts)
		return nil
	})
	return out, err
}

func (s *Service) applyWidgetStates(sess *session, incoming map[string]widget.WidgetState) error {
	now := s.now().UTC().Format(time.RFC3339)
	for key, in := range incoming {
		id := widget.WidgetID(key)
		d, ok := sess.reg.Get(id)
		if !ok {
			return errors.NewValidationError(errors.ErrCodeUnknownWidget, fmt.Sprintf("unknown widget %q", key), nil).
				WithContext("widget", key)
		}

		st := sess.states[id]
		if len(in.Data) > 0 && string(in.Data) != "null" {
			if err := d.ValidateData(in.Data); err != nil {
				return errors.NewValidationError(errors.ErrCodeInvalidWidgetData, fmt.Sprintf("invalid data for widget %s", key), err).
					WithContext("widget", key)
			}
			st.Data = in.Data
			st.LastUpdated = now
		}
		if in.LastUpdated != "" {
			st.LastUpdated = in.LastUpdated
		}
		if in.Collapsed != nil {
			v := *in.Collapsed
			st.Collapsed = &v
		}
		sess.states[id] = st
	}
	return nil
}

// SaveNotes replaces the interview notes and the notes widget.
func (s *Service) SaveNotes(ctx context.Context, interviewID, notes string) error {
	return s.track(ctx, "save_notes", func() error {
		sess, err := s.load(ctx, interviewID)
		if err != nil {
			return err
		}
		if !sess.reg.Has(widget.Notes) {
			text := notes
			return s.persistPatch(ctx, interviewID, types.InterviewPatch{Notes: &text})
		}

		data, err := json.Marshal(widget.NotesData{Text: notes})
		if err != nil {
			return errors.NewInternalError(errors.ErrCodeInvalidWidgetData, "failed to encode notes", err)
		}
		if err := sess.states.SetData(sess.reg, widget.Notes, data, s.now()); err != nil {
			return widgetErr(widget.Notes, err)
		}
		payload, err := widget.SerializeWidgets(sess.reg, sess.states, widget.Notes)
		if err != nil {
			return errors.NewInternalError(errors.ErrCodeInvalidWidgetData, "failed to serialize notes", err)
		}
		return s.persist(ctx, interviewID, payload)
	})
}

func (s *Service) persistPatch(ctx context.Context, interviewID string, patch types.InterviewPatch) error {
	_, err := s.store.PatchInterview(ctx, interviewID, patch)
	return err
}

// UpdateWidget replaces one widget's data. The widget must be editable in
// the requested mode. Editing the job cheat sheet also stores the
// re-derived live checklist.
func (s *Service) UpdateWidget(ctx context.Context, interviewID string, id widget.WidgetID, data json.RawMessage, opts ViewOptions) (*Session, error) {
	var out *Session
	err := s.track(ctx, "update_widget", func() error {
		sess, err := s.load(ctx, interviewID)
		if err != nil {
			return err
		}

		d, ok := sess.reg.Get(id)
		if !ok {
			return widgetErr(id, widget.ErrUnknownWidget)
		}
		mode, _ := s.resolve(opts)
		if !d.EditableIn(mode) {
			return errors.NewValidationError(errors.ErrCodeWidgetReadOnly,
				fmt.Sprintf("widget %s is not editable in %s mode", id, mode), nil).
				WithContext("widget", string(id))
		}

		if err := sess.states.SetData(sess.reg, id, data, s.now()); err != nil {
			return widgetErr(id, err)
		}
		if err := s.persistWidgets(ctx, sess, withDependents(sess.reg, id)...); err != nil {
			return err
		}
		out = s.render(sess, opts)
		return nil
	})
	return out, err
}

// withDependents adds the widgets whose state is derived from id.
func withDependents(reg *widget.Registry, id widget.WidgetID) []widget.WidgetID {
	ids := []widget.WidgetID{id}
	if id == widget.JobCheatSheet && reg.Has(widget.LiveChecklist) {
		ids = append(ids, widget.LiveChecklist)
	}
	return ids
}

func (s *Service) persistWidgets(ctx context.Context, sess *session, ids ...widget.WidgetID) error {
	payload, err := widget.SerializeWidgets(sess.reg, sess.states, ids...)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInvalidWidgetData, "failed to serialize widgets", err)
	}
	return s.persist(ctx, sess.interview.ID, payload)
}

// SetCollapsed toggles a widget's collapsed flag and stores the layout
// with heights re-applied.
func (s *Service) SetCollapsed(ctx context.Context, interviewID string, id widget.WidgetID, collapsed bool, opts ViewOptions) (*Session, error) {
	var out *Session
	err := s.track(ctx, "set_collapsed", func() error {
		sess, err := s.load(ctx, interviewID)
		if err != nil {
			return err
		}
		if err := sess.states.SetCollapsed(sess.reg, id, collapsed); err != nil {
			return widgetErr(id, err)
		}
		sess.layout = widget.ApplyCollapsedState(sess.reg, sess.layout, widget.CollapsedFlags(sess.states))

		// Only the flag and the layout are stored; data that was never
		// edited stays derived from the context.
		payload := widget.SessionPayload{Session: widget.PersistedSession{
			Layout: sess.layout.Persisted(),
			WidgetMetadata: map[string]widget.PersistedWidgetMeta{
				string(id): {Collapsed: &collapsed},
			},
		}}
		if err := s.persist(ctx, interviewID, payload); err != nil {
			return err
		}
		out = s.render(sess, opts)
		return nil
	})
	return out, err
}

// widgetErr converts a widget package error into an AppError.
func widgetErr(id widget.WidgetID, err error) error {
	if stderrors.Is(err, widget.ErrUnknownWidget) {
		return errors.NewNotFoundError(errors.ErrCodeUnknownWidget, fmt.Sprintf("unknown widget %q", id), err).
			WithContext("widget", string(id))
	}
	return errors.NewValidationError(errors.ErrCodeInvalidWidgetData, fmt.Sprintf("invalid data for widget %s", id), err).
		WithContext("widget", string(id))
}
