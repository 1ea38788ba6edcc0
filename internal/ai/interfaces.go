package ai

import (
	"context"

	"jobcoach/internal/types"
)

// AIProvider interface for different AI implementations
// All methods return token usage information - callers can ignore it if not needed
type AIProvider interface {
	GenerateCheatSheet(ctx context.Context, input types.CheatSheetInput) (types.CheatSheet, *TokenUsage, error)
	GeneratePrepOutline(ctx context.Context, input types.OutlineInput) (types.PrepOutline, *TokenUsage, error)
	DraftAnswer(ctx context.Context, input types.AnswerInput) (types.AnswerDraft, *TokenUsage, error)
	GetModelInfo(ctx context.Context) *ModelInfo
	Close() error
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}
