package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"jobcoach/internal/analysis"
	"jobcoach/internal/copilot"
	"jobcoach/internal/errors"
	"jobcoach/internal/store"
	"jobcoach/internal/types"
	"jobcoach/internal/widget"
)

// NotesRequest is the body of PUT /interviews/{id}/notes.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// WidgetUpdateRequest is the body of PUT /interviews/{id}/widgets/{widget}.
type WidgetUpdateRequest struct {
	Data json.RawMessage `json:"data"`
}

// CollapseRequest is the body of POST .../widgets/{widget}/collapse.
type CollapseRequest struct {
	Collapsed bool `json:"collapsed"`
}

// AnswerRequest is the body of POST /interviews/{id}/answers.
type AnswerRequest struct {
	Question     string   `json:"question"`
	PriorAnswers []string `json:"priorAnswers,omitempty"`
}

// DecodeResponse is a decoded single analysis section.
type DecodeResponse struct {
	Kind    string `json:"kind"`
	Version string `json:"version"`
	Value   any    `json:"value"`
}

// viewOptions reads ?mode= and ?breakpoint=. Absent values use the
// service defaults.
func viewOptions(r *http.Request) (copilot.ViewOptions, error) {
	var opts copilot.ViewOptions
	q := r.URL.Query()
	if v := q.Get("mode"); v != "" {
		mode, ok := widget.ParseMode(v)
		if !ok {
			return opts, errors.NewValidationError(errors.ErrCodeInvalidRequest, "mode must be 'live' or 'prep'", nil).
				WithContext("mode", v)
		}
		opts.Mode = mode
	}
	if v := q.Get("breakpoint"); v != "" {
		bp, ok := widget.ParseBreakpoint(v)
		if !ok {
			return opts, errors.NewValidationError(errors.ErrCodeInvalidRequest, "breakpoint must be 'lg', 'md' or 'sm'", nil).
				WithContext("breakpoint", v)
		}
		opts.Breakpoint = bp
	}
	return opts, nil
}

// recordID resolves the record id from the path and the body. A body id
// that disagrees with the path is rejected.
func recordID(r *http.Request, bodyID *string) error {
	pathID := r.PathValue("id")
	if *bodyID == "" {
		*bodyID = pathID
		return nil
	}
	if *bodyID != pathID {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "body id does not match path id", nil).
			WithContext("path_id", pathID).
			WithContext("body_id", *bodyID)
	}
	return nil
}

func (s *Server) getApplicationHandler(w http.ResponseWriter, r *http.Request) {
	app, err := s.Store.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (s *Server) putApplicationHandler(w http.ResponseWriter, r *http.Request) {
	var app types.Application
	if err := parseJSONRequest(r, &app); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := recordID(r, &app.ID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if len(app.JobAnalysis) > 0 {
		if _, err := analysis.DecodeJobAnalysis(app.JobAnalysis); err != nil {
			s.writeAppError(w, r, decodeErr(err))
			return
		}
	}
	s.putAndReturn(w, r, func(ctx context.Context) (any, error) {
		if err := s.Store.PutApplication(ctx, &app); err != nil {
			return nil, err
		}
		return s.Store.GetApplication(ctx, app.ID)
	})
}

func (s *Server) getNarrativeHandler(w http.ResponseWriter, r *http.Request) {
	nar, err := s.Store.GetNarrative(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nar)
}

func (s *Server) putNarrativeHandler(w http.ResponseWriter, r *http.Request) {
	var nar types.Narrative
	if err := parseJSONRequest(r, &nar); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := recordID(r, &nar.ID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.putAndReturn(w, r, func(ctx context.Context) (any, error) {
		if err := s.Store.PutNarrative(ctx, &nar); err != nil {
			return nil, err
		}
		return s.Store.GetNarrative(ctx, nar.ID)
	})
}

func (s *Server) getInterviewHandler(w http.ResponseWriter, r *http.Request) {
	iv, err := s.Store.GetInterview(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

// putInterviewHandler stores interview metadata. The co-pilot state is
// owned by the co-pilot endpoints: a stored state is kept and one in the
// body is ignored.
func (s *Server) putInterviewHandler(w http.ResponseWriter, r *http.Request) {
	var iv types.Interview
	if err := parseJSONRequest(r, &iv); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := recordID(r, &iv.ID); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if iv.ApplicationID == "" {
		s.writeAppError(w, r, errors.NewValidationError(errors.ErrCodeInvalidRequest, "applicationId is required", nil))
		return
	}

	s.putAndReturn(w, r, func(ctx context.Context) (any, error) {
		iv.Copilot = types.CopilotState{}
		existing, err := s.Store.GetInterview(ctx, iv.ID)
		switch {
		case err == nil:
			iv.Copilot = existing.Copilot
			iv.CreatedAt = existing.CreatedAt
		case !stderrors.Is(err, store.ErrNotFound):
			return nil, err
		}
		if err := s.Store.PutInterview(ctx, &iv); err != nil {
			return nil, err
		}
		return s.Store.GetInterview(ctx, iv.ID)
	})
}

func (s *Server) putAndReturn(w http.ResponseWriter, r *http.Request, put func(context.Context) (any, error)) {
	record, err := put(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// sessionHandler runs a co-pilot operation that returns a session.
func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request, op func(context.Context, string, copilot.ViewOptions) (*copilot.Session, error)) {
	opts, err := viewOptions(r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	sess, err := op(r.Context(), r.PathValue("id"), opts)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) openSessionHandler(w http.ResponseWriter, r *http.Request) {
	s.sessionHandler(w, r, s.Copilot.Open)
}

func (s *Server) saveSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req copilot.SaveRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.sessionHandler(w, r, func(ctx context.Context, id string, opts copilot.ViewOptions) (*copilot.Session, error) {
		return s.Copilot.Save(ctx, id, req, opts)
	})
}

func (s *Server) saveNotesHandler(w http.ResponseWriter, r *http.Request) {
	var req NotesRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.Copilot.SaveNotes(r.Context(), r.PathValue("id"), req.Notes); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateWidgetHandler(w http.ResponseWriter, r *http.Request) {
	var req WidgetUpdateRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if len(req.Data) == 0 {
		s.writeAppError(w, r, errors.NewValidationError(errors.ErrCodeInvalidWidgetData, "data is required", nil))
		return
	}
	id := widget.WidgetID(r.PathValue("widget"))
	s.sessionHandler(w, r, func(ctx context.Context, interviewID string, opts copilot.ViewOptions) (*copilot.Session, error) {
		return s.Copilot.UpdateWidget(ctx, interviewID, id, req.Data, opts)
	})
}

func (s *Server) collapseWidgetHandler(w http.ResponseWriter, r *http.Request) {
	var req CollapseRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	id := widget.WidgetID(r.PathValue("widget"))
	s.sessionHandler(w, r, func(ctx context.Context, interviewID string, opts copilot.ViewOptions) (*copilot.Session, error) {
		return s.Copilot.SetCollapsed(ctx, interviewID, id, req.Collapsed, opts)
	})
}

func (s *Server) cheatSheetHandler(w http.ResponseWriter, r *http.Request) {
	s.sessionHandler(w, r, s.Copilot.GenerateCheatSheet)
}

func (s *Server) outlineHandler(w http.ResponseWriter, r *http.Request) {
	s.sessionHandler(w, r, s.Copilot.GeneratePrepOutline)
}

func (s *Server) answerHandler(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := parseJSONRequest(r, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	draft, err := s.Copilot.DraftAnswer(r.Context(), r.PathValue("id"), req.Question, req.PriorAnswers)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

// decodeAnalysisHandler decodes a stored AI payload. ?kind= selects
// keywords, guidance or problems; the default is a whole job analysis,
// answered with its summary.
func (s *Server) decodeAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := parseJSONRequest(r, &raw); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	kind := r.URL.Query().Get("kind")
	var (
		value   any
		version analysis.Version
		err     error
	)
	switch kind {
	case "", "job":
		ja, err := analysis.DecodeJobAnalysis(raw)
		if err != nil {
			s.writeAppError(w, r, decodeErr(err))
			return
		}
		writeJSON(w, http.StatusOK, ja.Summarize())
		return
	case "keywords":
		var k analysis.Keywords
		if k, err = analysis.DecodeKeywords(raw); err == nil {
			value, version = k, k.Version()
		}
	case "guidance":
		var g analysis.Guidance
		if g, err = analysis.DecodeGuidance(raw); err == nil {
			value, version = g, g.Version()
		}
	case "problems":
		var p analysis.ProblemAnalysis
		if p, err = analysis.DecodeProblemAnalysis(raw); err == nil {
			value, version = p, p.Version()
		}
	default:
		s.writeAppError(w, r, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			"kind must be one of job, keywords, guidance, problems", nil).WithContext("kind", kind))
		return
	}
	if err != nil {
		s.writeAppError(w, r, decodeErr(err))
		return
	}
	writeJSON(w, http.StatusOK, DecodeResponse{Kind: kind, Version: version.String(), Value: value})
}

// decodeErr classifies an analysis decode failure as a client error.
func decodeErr(err error) error {
	code := errors.ErrCodeInvalidFormat
	if stderrors.Is(err, analysis.ErrUnknownShape) {
		code = errors.ErrCodeUnknownShape
	}
	return errors.NewValidationError(code, "analysis payload could not be decoded", err)
}
