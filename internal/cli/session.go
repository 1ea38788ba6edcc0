package cli

import (
	"cmp"
	"context"
	"fmt"

	"jobcoach/internal/common"
	"jobcoach/internal/copilot"
	"jobcoach/internal/errors"
	"jobcoach/internal/store"
	"jobcoach/internal/types"
	"jobcoach/internal/widget"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Work with co-pilot sessions offline",
}

var sessionRenderCmd = &cobra.Command{
	Use:   "render [context-file] [session-file]",
	Short: "Hydrate and render a co-pilot session",
	Long: `Render the co-pilot view of an interview without a server.

The context file is a JSON object with "interview" and optional
"application" and "narrative" records. The optional session file holds a
stored co-pilot state ({layout, widgetData, widgetMetadata}) and replaces
the one on the interview.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSessionRender,
}

// sessionContext is the input of session render.
type sessionContext struct {
	Application *types.Application `json:"application,omitempty"`
	Interview   *types.Interview   `json:"interview"`
	Narrative   *types.Narrative   `json:"narrative,omitempty"`
}

var (
	sessionConfig     common.CommandConfig
	sessionMode       string
	sessionBreakpoint string
)

func init() {
	addOutputFlags(sessionRenderCmd, &sessionConfig)
	sessionRenderCmd.Flags().StringVar(&sessionMode, "mode", "", "View mode: live or prep (default from config)")
	sessionRenderCmd.Flags().StringVar(&sessionBreakpoint, "breakpoint", "", "Breakpoint: lg, md or sm (default from config)")
	sessionCmd.AddCommand(sessionRenderCmd)
}

func runSessionRender(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())
	ctx := cmd.Context()

	mode, bp, err := common.ParseViewFlags(sessionMode, sessionBreakpoint,
		widget.Mode(cfg.App.DefaultMode), widget.Breakpoint(cfg.App.DefaultBreakpoint))
	if err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest, "invalid view flags", err)
	}

	files := sessionConfig.Files(logger)
	var sc sessionContext
	if err := files.ReadJSON(args[0], &sc); err != nil {
		return err
	}
	if sc.Interview == nil {
		return errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("%s has no interview", args[0]), nil)
	}
	if len(args) == 2 {
		var state types.CopilotState
		if err := files.ReadJSON(args[1], &state); err != nil {
			return err
		}
		sc.Interview.Copilot = state
	}

	reg, err := loadRegistry(cfg, logger)
	if err != nil {
		return err
	}

	st := store.NewMemory()
	if err := seedSessionStore(ctx, st, &sc); err != nil {
		return err
	}

	svc, err := copilot.New(copilot.Config{
		Store:             st,
		Registry:          widget.NewRegistryHolder(reg),
		Logger:            logger,
		DefaultMode:       mode,
		DefaultBreakpoint: bp,
	})
	if err != nil {
		return err
	}

	sess, err := svc.Open(ctx, sc.Interview.ID, copilot.ViewOptions{Mode: mode, Breakpoint: bp})
	if err != nil {
		return err
	}
	for _, w := range sess.Warnings {
		logger.Warn("Session warning", "interview_id", sess.InterviewID, "warning", w)
	}

	return common.NewOutputHandler(logger).HandleOutput(sess, sessionConfig)
}

// seedSessionStore stores the context records, generating ids for records
// that have none and linking them to the interview.
func seedSessionStore(ctx context.Context, st store.Store, sc *sessionContext) error {
	iv := sc.Interview
	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}

	if app := sc.Application; app != nil {
		if app.ID == "" {
			app.ID = cmp.Or(iv.ApplicationID, uuid.NewString())
		}
		if iv.ApplicationID == "" {
			iv.ApplicationID = app.ID
		}
		if err := st.PutApplication(ctx, app); err != nil {
			return err
		}
	}
	if nar := sc.Narrative; nar != nil {
		if nar.ID == "" {
			nar.ID = cmp.Or(iv.NarrativeID, uuid.NewString())
		}
		if iv.NarrativeID == "" {
			iv.NarrativeID = nar.ID
		}
		if err := st.PutNarrative(ctx, nar); err != nil {
			return err
		}
	}
	return st.PutInterview(ctx, iv)
}
