package ai

import (
	"context"
	stderrors "errors"
	"fmt"

	"jobcoach/internal/config"
	"jobcoach/internal/errors"
	"jobcoach/internal/types"
)

// Service handles AI operations for one configured operation
type Service struct {
	Provider AIProvider // Exported for access from server package
	config   *config.OperationAIConfig
	logger   *errors.Logger
}

// NewService creates a new AI service instance with configuration for a specific operation
func NewService(cfg *config.OperationAIConfig, operationType string, logger *errors.Logger) (*Service, error) {
	var provider AIProvider
	var err error

	logger.Debug("Initializing AI service",
		"provider", cfg.Provider,
		"operation_type", operationType,
		"model", cfg.Model,
		"temperature", *cfg.Temperature,
		"timeout", *cfg.Timeout,
		"max_retries", *cfg.MaxRetries,
		"use_system_prompts", *cfg.UseSystemPrompts)

	switch cfg.Provider {
	case "gemini":
		provider, err = NewGeminiProvider(cfg, operationType, logger)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported AI provider: %s", cfg.Provider), nil)
	}

	if err != nil {
		if errors.IsType(err, errors.ErrorTypeConfig) {
			return nil, err
		}
		return nil, errors.NewAIError(errors.ErrCodeAIServiceFailed,
			"Failed to create AI provider", err)
	}

	return &Service{
		Provider: provider,
		config:   cfg,
		logger:   logger,
	}, nil
}

// GetModelInfo returns information about the AI model for health checks
func (s *Service) GetModelInfo(ctx context.Context) *ModelInfo {
	return s.Provider.GetModelInfo(ctx)
}

// Services groups the per-operation AI services. A nil field means the
// operation is not configured and calls to it fail with ErrCodeAIUnavailable.
type Services struct {
	CheatSheet *Service
	Outline    *Service
	Answer     *Service
}

// NewServices builds one service per AI operation. Operations that cannot
// be initialized (typically a missing API key) are left nil and reported
// in the returned error; the Services value is usable either way.
func NewServices(cfg *config.Config, logger *errors.Logger) (*Services, error) {
	s := &Services{}
	var errs []error
	for _, op := range []struct {
		name string
		dst  **Service
	}{
		{config.OpCheatSheet, &s.CheatSheet},
		{config.OpOutline, &s.Outline},
		{config.OpAnswer, &s.Answer},
	} {
		opCfg := cfg.GetOperationConfig(op.name)
		svc, err := NewService(&opCfg, op.name, logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", op.name, err))
			continue
		}
		*op.dst = svc
	}
	return s, stderrors.Join(errs...)
}

func unavailable(op string) error {
	return errors.NewAIError(errors.ErrCodeAIUnavailable,
		fmt.Sprintf("AI operation %q is not configured", op), nil)
}

func (s *Services) provider(op string) (AIProvider, error) {
	var svc *Service
	if s != nil {
		switch op {
		case config.OpCheatSheet:
			svc = s.CheatSheet
		case config.OpOutline:
			svc = s.Outline
		case config.OpAnswer:
			svc = s.Answer
		}
	}
	if svc == nil || svc.Provider == nil {
		return nil, unavailable(op)
	}
	return svc.Provider, nil
}

// GenerateCheatSheet runs the cheat sheet operation.
func (s *Services) GenerateCheatSheet(ctx context.Context, input types.CheatSheetInput) (types.CheatSheet, *TokenUsage, error) {
	p, err := s.provider(config.OpCheatSheet)
	if err != nil {
		return types.CheatSheet{}, nil, err
	}
	return p.GenerateCheatSheet(ctx, input)
}

// GeneratePrepOutline runs the prep outline operation.
func (s *Services) GeneratePrepOutline(ctx context.Context, input types.OutlineInput) (types.PrepOutline, *TokenUsage, error) {
	p, err := s.provider(config.OpOutline)
	if err != nil {
		return types.PrepOutline{}, nil, err
	}
	return p.GeneratePrepOutline(ctx, input)
}

// DraftAnswer runs the answer drafting operation.
func (s *Services) DraftAnswer(ctx context.Context, input types.AnswerInput) (types.AnswerDraft, *TokenUsage, error) {
	p, err := s.provider(config.OpAnswer)
	if err != nil {
		return types.AnswerDraft{}, nil, err
	}
	return p.DraftAnswer(ctx, input)
}

// ModelInfo reports model availability per configured operation.
func (s *Services) ModelInfo(ctx context.Context) map[string]*ModelInfo {
	out := make(map[string]*ModelInfo, 3)
	for _, op := range []string{config.OpCheatSheet, config.OpOutline, config.OpAnswer} {
		p, err := s.provider(op)
		if err != nil {
			out[op] = &ModelInfo{Error: err.Error()}
			continue
		}
		out[op] = p.GetModelInfo(ctx)
	}
	return out
}

// Close releases every configured provider.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for _, svc := range []*Service{s.CheatSheet, s.Outline, s.Answer} {
		if svc != nil && svc.Provider != nil {
			errs = append(errs, svc.Provider.Close())
		}
	}
	return stderrors.Join(errs...)
}
