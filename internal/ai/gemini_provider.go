package ai

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"jobcoach/internal/config"
	appErrors "jobcoach/internal/errors"
	"jobcoach/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GeminiProvider implements AIProvider for Google Gemini
type GeminiProvider struct {
	client         *genai.Client
	config         *config.OperationAIConfig
	circuitBreaker *Breaker[*genai.GenerateContentResponse]
	modelBreaker   *Breaker[*genai.Model]
	logger         *appErrors.Logger
}

// Ensure GeminiProvider implements AIProvider
var _ AIProvider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a new Gemini provider instance for a specific operation
func NewGeminiProvider(cfg *config.OperationAIConfig, operationType string, logger *appErrors.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, appErrors.NewConfigError(appErrors.ErrCodeMissingAPIKey,
			"Gemini API key is not configured for "+operationType, nil)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: *cfg.Timeout},
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, appErrors.NewAIError(appErrors.ErrCodeAIServiceFailed,
			"Failed to create Gemini client", err)
	}

	return &GeminiProvider{
		client:         client,
		config:         cfg,
		circuitBreaker: NewGenerateBreaker(operationType, cfg, logger),
		modelBreaker:   NewModelBreaker(operationType, cfg, logger),
		logger:         logger,
	}, nil
}

// ModelInfo represents information about the AI model
type ModelInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version,omitempty"`
	Available   bool   `json:"available"`
	Error       string `json:"error,omitempty"`
}

// GetModelInfo checks the readiness and availability of the configured model
func (g *GeminiProvider) GetModelInfo(ctx context.Context) *ModelInfo {
	modelInfo := &ModelInfo{
		Name:      g.config.Model,
		Available: false,
	}

	checkCtx, cancel := context.WithTimeout(ctx, modelCheckTimeout)
	defer cancel()

	model, err := g.modelBreaker.Execute(func() (*genai.Model, error) {
		return g.client.Models.Get(checkCtx, g.config.Model, &genai.GetModelConfig{})
	})
	if err != nil {
		modelInfo.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed",
			"model", g.config.Model,
			"provider", g.config.Provider,
			"error", err.Error())
		return modelInfo
	}

	modelInfo.Available = true
	modelInfo.DisplayName = model.DisplayName
	modelInfo.Version = model.Version

	g.logger.Debug("Model availability check successful",
		"model", g.config.Model,
		"provider", g.config.Provider,
		"display_name", modelInfo.DisplayName,
		"version", modelInfo.Version)

	return modelInfo
}

// modelCheckTimeout bounds the health check call to the models endpoint.
const modelCheckTimeout = 10 * time.Second

// maxBackoff caps the delay between retries.
const maxBackoff = 30 * time.Second

// backoffDelay returns the wait before retry attempt n (n >= 1): 2^(n-1)
// seconds plus up to 10% jitter, capped at maxBackoff.
func backoffDelay(attempt int) time.Duration {
	baseDelay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	jitter := time.Duration(0)
	if jitterMax := int64(float64(baseDelay) * 0.1); jitterMax > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(jitterMax)); err == nil {
			jitter = time.Duration(n.Int64())
		}
	}
	return min(baseDelay+jitter, maxBackoff)
}

// executeWithRetry executes an AI operation with retry logic and exponential backoff
func (g *GeminiProvider) executeWithRetry(ctx context.Context, operation string, fn func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	var lastErr error
	maxRetries := *g.config.MaxRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("Retrying AI operation",
				"operation", operation,
				"attempt", attempt,
				"max_retries", maxRetries,
				"error", lastErr.Error())

			select {
			case <-time.After(backoffDelay(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				g.logger.Info("AI operation succeeded after retry",
					"operation", operation,
					"total_attempts", attempt+1)
			}
			return result, nil
		}

		lastErr = err

		// Don't retry on auth, invalid input and similar errors
		if !isRetryableError(err) {
			g.logger.Debug("Error is not retryable, stopping retry attempts",
				"operation", operation,
				"error", err.Error())
			break
		}
	}

	g.logger.LogError(lastErr, "AI operation failed after all retry attempts",
		"operation", operation,
		"max_attempts", maxRetries+1)

	return nil, fmt.Errorf("operation '%s' failed after %d retries: %w", operation, maxRetries, lastErr)
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// Timeouts, refused connections and resets are all worth another try
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.Code)
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return retryableStatus(genaiErr.Code)
	}
	var genaiErrPtr *genai.APIError
	if errors.As(err, &genaiErrPtr) {
		return retryableStatus(genaiErrPtr.Code)
	}

	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// executeAIOperation is a generic helper to run AI operations with common tracing, circuit breaker, and parsing logic.
func executeAIOperation[Out any](
	g *GeminiProvider,
	ctx context.Context,
	operationName string,
	userPrompt string,
	systemPrompt string,
	genaiConfig *genai.GenerateContentConfig,
	spanAttributes ...attribute.KeyValue,
) (Out, *TokenUsage, error) {
	var output Out
	tracer := otel.Tracer("jobcoach.ai.gemini")
	ctx, span := tracer.Start(ctx, "gemini."+operationName)
	defer span.End()

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", g.config.Model),
		attribute.Float64("ai.temperature", float64(*g.config.Temperature)),
	)
	span.SetAttributes(spanAttributes...)

	if *g.config.UseSystemPrompts && systemPrompt != "" {
		genaiConfig.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	} else if systemPrompt != "" {
		userPrompt = systemPrompt + "\n\n" + userPrompt
	}

	result, err := g.circuitBreaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.executeWithRetry(ctx, operationName, func() (*genai.GenerateContentResponse, error) {
			return g.client.Models.GenerateContent(ctx, g.config.Model, genai.Text(userPrompt), genaiConfig)
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		code := appErrors.ErrCodeAIServiceFailed
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			code = appErrors.ErrCodeAITimeout
		case IsBreakerRejection(err):
			code = appErrors.ErrCodeAIUnavailable
		}
		return output, nil, appErrors.NewAIError(code, "Failed to generate content for "+operationName, err)
	}

	if err := json.Unmarshal([]byte(result.Text()), &output); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return output, nil, appErrors.NewAIError(appErrors.ErrCodeAIResponseParse, "Failed to parse AI response for "+operationName, err)
	}

	tokenUsage := extractTokenUsage(result)
	if tokenUsage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", tokenUsage.InputTokens),
			attribute.Int64("ai.tokens.output", tokenUsage.OutputTokens),
			attribute.Int64("ai.tokens.total", tokenUsage.TotalTokens),
		)
	}

	span.SetAttributes(attribute.Bool("success", true))
	return output, tokenUsage, nil
}

// GenerateCheatSheet implements AIProvider for job cheat sheet generation
func (g *GeminiProvider) GenerateCheatSheet(ctx context.Context, input types.CheatSheetInput) (types.CheatSheet, *TokenUsage, error) {
	userPrompt := fmt.Sprintf(g.userPrompt(DefaultUserPrompts.CheatSheet),
		input.Company, input.Role, input.JobDescription, formatNarrative(input.Narrative))

	output, tokenUsage, err := executeAIOperation[types.CheatSheet](
		g,
		ctx,
		"generate_cheatsheet",
		userPrompt,
		g.systemPrompt(DefaultSystemPrompts.CheatSheet),
		g.buildConfig(cheatSheetSchema()),
		attribute.Int("input.job_length", len(input.JobDescription)),
		attribute.Int("input.stories", len(input.Narrative.ImpactStories)),
	)
	if err != nil {
		return types.CheatSheet{}, nil, err
	}

	output = cleanCheatSheet(output)
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(
			attribute.Int("output.metrics", len(output.Metrics)),
			attribute.Int("output.levers", len(output.Levers)),
			attribute.Int("output.blockers", len(output.Blockers)),
		)
	}

	return output, tokenUsage, nil
}

// GeneratePrepOutline implements AIProvider for prep outline generation
func (g *GeminiProvider) GeneratePrepOutline(ctx context.Context, input types.OutlineInput) (types.PrepOutline, *TokenUsage, error) {
	userPrompt := fmt.Sprintf(g.userPrompt(DefaultUserPrompts.PrepOutline),
		input.Company, input.Role, orNone(input.Stage), input.JobDescription,
		formatNarrative(input.Narrative), formatOutline(input.Current))

	output, tokenUsage, err := executeAIOperation[types.PrepOutline](
		g,
		ctx,
		"generate_prep_outline",
		userPrompt,
		g.systemPrompt(DefaultSystemPrompts.PrepOutline),
		g.buildConfig(prepOutlineSchema()),
		attribute.Int("input.job_length", len(input.JobDescription)),
		attribute.Bool("input.has_outline", !input.Current.IsZero()),
	)
	if err != nil {
		return types.PrepOutline{}, nil, err
	}

	output.KeyStories = cleanList(output.KeyStories)
	output.QuestionsToAsk = cleanList(output.QuestionsToAsk)
	output.Risks = cleanList(output.Risks)

	return output, tokenUsage, nil
}

// DraftAnswer implements AIProvider for answer drafting
func (g *GeminiProvider) DraftAnswer(ctx context.Context, input types.AnswerInput) (types.AnswerDraft, *TokenUsage, error) {
	if strings.TrimSpace(input.Question) == "" {
		return types.AnswerDraft{}, nil, appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest,
			"question is required", nil)
	}

	userPrompt := fmt.Sprintf(g.userPrompt(DefaultUserPrompts.DraftAnswer),
		input.Question, input.Company, input.Role, orNone(input.JobDescription),
		orNone(input.Positioning), formatStories(input.Stories), formatList(input.PriorAnswers))

	output, tokenUsage, err := executeAIOperation[types.AnswerDraft](
		g,
		ctx,
		"draft_answer",
		userPrompt,
		g.systemPrompt(DefaultSystemPrompts.DraftAnswer),
		g.buildConfig(answerSchema()),
		attribute.Int("input.question_length", len(input.Question)),
		attribute.Int("input.stories", len(input.Stories)),
	)
	if err != nil {
		return types.AnswerDraft{}, nil, err
	}

	output = cleanAnswer(output, input.Stories)
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(
			attribute.String("output.confidence", output.Confidence),
			attribute.Int("output.story_refs", len(output.StoryIDs)),
		)
	}

	return output, tokenUsage, nil
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (g *GeminiProvider) GetCircuitBreakerStats() map[string]any {
	return map[string]any{
		"ai_operations":    g.circuitBreaker.Stats(),
		"model_operations": g.modelBreaker.Stats(),
		"overall_healthy":  g.circuitBreaker.Healthy() && g.modelBreaker.Healthy(),
	}
}

// Close implements AIProvider interface
func (g *GeminiProvider) Close() error {
	// The genai client holds no connections in single-shot mode
	return nil
}

// buildConfig wraps a response schema in a generation config.
func (g *GeminiProvider) buildConfig(schema *genai.Schema) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	if *g.config.Temperature > 0 {
		cfg.Temperature = g.config.Temperature
	}
	return cfg
}

func (g *GeminiProvider) systemPrompt(fallback string) string {
	return resolvePrompt(g.config.Prompts.System, fallback)
}

func (g *GeminiProvider) userPrompt(fallback string) string {
	return resolvePrompt(g.config.Prompts.User, fallback)
}

func stringList() *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
}

func cheatSheetSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary":       {Type: genai.TypeString},
			"keywords":      stringList(),
			"metrics":       stringList(),
			"levers":        stringList(),
			"blockers":      stringList(),
			"talkingPoints": stringList(),
		},
		Required: []string{"summary", "keywords", "metrics", "levers", "blockers"},
	}
}

func prepOutlineSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"opening":        {Type: genai.TypeString},
			"positioning":    {Type: genai.TypeString},
			"keyStories":     stringList(),
			"questionsToAsk": stringList(),
			"risks":          stringList(),
			"closing":        {Type: genai.TypeString},
		},
		Required: []string{"opening", "positioning", "keyStories", "questionsToAsk", "risks", "closing"},
	}
}

func answerSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"answer":     {Type: genai.TypeString},
			"storyIds":   stringList(),
			"followUps":  stringList(),
			"confidence": {Type: genai.TypeString, Enum: []string{"low", "medium", "high"}},
		},
		Required: []string{"answer", "confidence"},
	}
}

// cleanList trims entries and drops blanks and case-insensitive repeats.
func cleanList(items []string) []string {
	var out []string
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if item == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func cleanCheatSheet(cs types.CheatSheet) types.CheatSheet {
	cs.Summary = strings.TrimSpace(cs.Summary)
	cs.Keywords = cleanList(cs.Keywords)
	cs.Metrics = cleanList(cs.Metrics)
	cs.Levers = cleanList(cs.Levers)
	cs.Blockers = cleanList(cs.Blockers)
	cs.TalkingPoints = cleanList(cs.TalkingPoints)
	return cs
}

// cleanAnswer drops story references the candidate does not have and
// normalizes the confidence label.
func cleanAnswer(a types.AnswerDraft, stories []types.ImpactStory) types.AnswerDraft {
	a.Answer = strings.TrimSpace(a.Answer)
	a.FollowUps = cleanList(a.FollowUps)

	var ids []string
	for _, id := range cleanList(a.StoryIDs) {
		if slices.ContainsFunc(stories, func(s types.ImpactStory) bool { return s.ID == id }) {
			ids = append(ids, id)
		}
	}
	a.StoryIDs = ids

	switch c := strings.ToLower(strings.TrimSpace(a.Confidence)); c {
	case "low", "medium", "high":
		a.Confidence = c
	default:
		a.Confidence = "low"
	}
	return a
}

// extractTokenUsage extracts token usage information from Gemini API response
func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}

	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}

// resolvePrompt returns the configured prompt, or the built-in default when
// none is set. File-loaded prompts are already folded into the config by
// config.GetOperationConfig.
func resolvePrompt(fromConfig, fromDefault string) string {
	if strings.TrimSpace(fromConfig) != "" {
		return fromConfig
	}
	return fromDefault
}
