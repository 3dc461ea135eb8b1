package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"cryptofolio/internal/adapters/config"
	"cryptofolio/pkg/logger"
	"cryptofolio/pkg/models"
)

const systemPrompt = `You are a crypto portfolio analyst. Given a portfolio summary you return
observations the rule-based checks cannot make: cross-asset patterns, notable context, risks.
Respond with ONLY a JSON array (no markdown) of at most 3 objects:
[{"title": "...", "description": "...", "severity": "low|medium|high", "kind": "warning|opportunity|info", "score": 0-100}]
Return [] if you have nothing useful to add. Never give financial advice as certainty.`

// OpenAIGenerator implements NarrativeGenerator using the OpenAI chat API
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	locale  string
	enabled bool
}

// NewOpenAIGenerator creates new OpenAI narrative generator
func NewOpenAIGenerator(cfg *config.AIConfig) *OpenAIGenerator {
	var client *openai.Client
	if cfg.APIKey != "" {
		client = openai.NewClient(cfg.APIKey)
	}

	return &OpenAIGenerator{
		client:  client,
		model:   cfg.Model,
		locale:  cfg.Locale,
		enabled: cfg.Enabled && cfg.APIKey != "",
	}
}

// systemPromptFor appends an output-language instruction for non-English
// locales; titles and descriptions go to the user unedited.
func systemPromptFor(locale string) string {
	if locale == "" || locale == "en" {
		return systemPrompt
	}
	return systemPrompt + fmt.Sprintf("\nWrite every title and description in the language with ISO 639-1 code %q.", locale)
}

// IsEnabled reports whether the generator is configured and active
func (o *OpenAIGenerator) IsEnabled() bool {
	return o.enabled
}

// GenerateNarrative asks the model for portfolio observations and maps them to
// narrative insights. Invalid entries in the model output are dropped, not
// treated as an error.
func (o *OpenAIGenerator) GenerateNarrative(ctx context.Context, summary *models.PortfolioSummary, holdings []*models.Holding, assets map[string]models.Asset) ([]models.Insight, error) {
	if !o.enabled {
		return nil, nil
	}

	userPrompt := buildUserPrompt(summary, holdings, assets)

	startTime := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPromptFor(o.locale)},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.7,
		MaxTokens:   800,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content

	logger.Debug("narrative response",
		zap.Duration("latency", time.Since(startTime)),
		zap.String("model", o.model),
		zap.Int("length", len(content)),
	)

	return parseNarrative(content, time.Now())
}

type narrativeItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Kind        string `json:"kind"`
	Score       int    `json:"score"`
}

// parseNarrative converts the model's JSON array into insights. The model
// sometimes wraps output in a markdown fence; strip it before decoding.
func parseNarrative(content string, now time.Time) ([]models.Insight, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var items []narrativeItem
	if err := json.Unmarshal([]byte(content), &items); err != nil {
		return nil, fmt.Errorf("failed to parse narrative response: %w", err)
	}

	insights := make([]models.Insight, 0, len(items))
	for i, item := range items {
		if item.Title == "" || item.Description == "" {
			continue
		}

		severity := models.InsightSeverity(item.Severity)
		switch severity {
		case models.SeverityLow, models.SeverityMedium, models.SeverityHigh:
		default:
			severity = models.SeverityLow
		}

		kind := models.InsightKind(item.Kind)
		switch kind {
		case models.KindWarning, models.KindOpportunity, models.KindInfo:
		default:
			kind = models.KindInfo
		}

		score := item.Score
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}

		insights = append(insights, models.Insight{
			ID:          fmt.Sprintf("narrative-%d", i+1),
			Category:    models.CategoryNarrative,
			Severity:    severity,
			Kind:        kind,
			Title:       item.Title,
			Description: item.Description,
			Score:       score,
			Status:      models.StatusNew,
			CreatedAt:   now,
		})
	}

	return insights, nil
}

// buildUserPrompt renders the portfolio state as compact text for the model
func buildUserPrompt(summary *models.PortfolioSummary, holdings []*models.Holding, assets map[string]models.Asset) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Portfolio: total value $%s, invested $%s, unrealized PnL $%s (%.1f%%), realized PnL $%s, diversification score %d/100.\n",
		summary.TotalValue.StringFixed(2),
		summary.TotalInvested.StringFixed(2),
		summary.UnrealizedPnL.StringFixed(2),
		summary.UnrealizedPercent,
		summary.RealizedPnL.StringFixed(2),
		summary.DiversificationScore,
	)

	sb.WriteString("Holdings:\n")
	for _, h := range holdings {
		if !h.Quantity.IsPositive() {
			continue
		}
		asset := assets[h.AssetID]
		fmt.Fprintf(&sb, "- %s (%s): qty %s, avg buy $%s, now $%s, 24h %+.1f%%\n",
			asset.Name, asset.Symbol,
			h.Quantity.String(),
			h.AvgBuyPrice.StringFixed(2),
			asset.CurrentPrice.StringFixed(2),
			asset.Change24h,
		)
	}

	return sb.String()
}
