package services

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vulegon/Summarite/internal/config"
	"github.com/vulegon/Summarite/internal/models"
	"github.com/vulegon/Summarite/pkg/logger"
)

const summarySystemPrompt = "You are a performance analyst for a software development team. " +
	"You provide constructive, data-driven feedback."

// SummaryService turns windowed metrics into a narrative summary through a
// generative text provider and persists the result per period.
type SummaryService struct {
	db  *gorm.DB
	cfg *config.AIConfig
}

func NewSummaryService(db *gorm.DB, cfg *config.AIConfig) *SummaryService {
	return &SummaryService{db: db, cfg: cfg}
}

// SummaryResult is the generated text plus the literal model identifier
// that produced it.
type SummaryResult struct {
	Content string `json:"content"`
	Model   string `json:"model"`
}

// Generate builds the prompt for the period's metrics and sends it to the
// configured provider. Provider errors propagate unchanged; there is no
// retry and no partial result.
func (s *SummaryService) Generate(ctx context.Context, metrics *PeriodMetrics, previous *PeriodMetrics, period Period) (*SummaryResult, error) {
	prompt := buildSummaryPrompt(metrics, previous, period)

	logger.Info().Str("provider", s.cfg.Provider).Str("model", s.cfg.Model).Msg("generating summary")

	switch s.cfg.Provider {
	case "anthropic":
		return s.generateAnthropic(ctx, prompt)
	case "ollama":
		return s.generateOllama(ctx, prompt)
	case "gemini":
		return s.generateGemini(ctx, prompt)
	default:
		// openai and OpenAI-compatible endpoints
		return s.generateOpenAI(ctx, prompt)
	}
}

// GenerateAndStore generates a summary and upserts it under the period key,
// so regenerating a period replaces its previous summary.
func (s *SummaryService) GenerateAndStore(ctx context.Context, userID uint, metrics *PeriodMetrics, previous *PeriodMetrics, period Period) (*models.Summary, error) {
	result, err := s.Generate(ctx, metrics, previous, period)
	if err != nil {
		return nil, err
	}

	summary := models.Summary{
		UserID:      userID,
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		PeriodType:  period.Type,
		Content:     result.Content,
		Model:       result.Model,
	}
	if err := s.store(&summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// store upserts a summary under its period key.
func (s *SummaryService) store(summary *models.Summary) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "period_start"}, {Name: "period_end"}, {Name: "period_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"content", "model", "updated_at"}),
	}).Create(summary).Error
	if err != nil {
		return fmt.Errorf("store summary: %w", err)
	}
	return nil
}

// ListForUser returns the user's stored summaries, newest period first.
func (s *SummaryService) ListForUser(userID uint, limit int) ([]models.Summary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var summaries []models.Summary
	err := s.db.Where("user_id = ?", userID).
		Order("period_start DESC").
		Limit(limit).
		Find(&summaries).Error
	return summaries, err
}

// formatChange renders a metric's movement against the previous period.
// The percentage is omitted when the previous value is zero.
func formatChange(current, previous int) string {
	delta := current - previous
	if delta == 0 {
		return "±0"
	}
	if previous == 0 {
		return fmt.Sprintf("%+d", delta)
	}
	percent := int(math.Round(float64(delta) / float64(previous) * 100))
	return fmt.Sprintf("%+d (%+d%%)", delta, percent)
}

func buildSummaryPrompt(metrics *PeriodMetrics, previous *PeriodMetrics, period Period) string {
	var periodLabel string
	switch period.Type {
	case PeriodWeekly:
		periodLabel = "weekly"
	case PeriodMonthly:
		periodLabel = "monthly"
	default:
		periodLabel = "custom-period"
	}

	change := func(current, prev int) string {
		if previous == nil {
			return ""
		}
		return fmt.Sprintf(" [vs previous: %s]", formatChange(current, prev))
	}
	var prevGithub GithubMetrics
	var prevJira JiraMetrics
	if previous != nil {
		prevGithub = previous.Github
		prevJira = previous.Jira
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Below is a developer's %s activity data for %s to %s (%d business days). ",
		periodLabel, period.Start.Format("2006-01-02"), period.End.Format("2006-01-02"), period.BusinessDays())
	b.WriteString("Analyze it and summarize achievements and areas to improve, concisely.\n\n")

	b.WriteString("## GitHub metrics\n")
	fmt.Fprintf(&b, "- PRs opened: %d%s\n", metrics.Github.PRsOpened, change(metrics.Github.PRsOpened, prevGithub.PRsOpened))
	fmt.Fprintf(&b, "- PRs merged: %d%s\n", metrics.Github.PRsMerged, change(metrics.Github.PRsMerged, prevGithub.PRsMerged))
	fmt.Fprintf(&b, "- Reviews: %d%s\n", metrics.Github.Reviews, change(metrics.Github.Reviews, prevGithub.Reviews))
	fmt.Fprintf(&b, "- Issues opened: %d%s\n", metrics.Github.IssuesOpened, change(metrics.Github.IssuesOpened, prevGithub.IssuesOpened))
	fmt.Fprintf(&b, "- Issues closed: %d%s\n", metrics.Github.IssuesClosed, change(metrics.Github.IssuesClosed, prevGithub.IssuesClosed))
	fmt.Fprintf(&b, "- Commits: %d%s\n", metrics.Github.Commits, change(metrics.Github.Commits, prevGithub.Commits))
	fmt.Fprintf(&b, "- Lines added/deleted: +%d / -%d\n\n", metrics.Github.Additions, metrics.Github.Deletions)

	b.WriteString("## Jira metrics\n")
	fmt.Fprintf(&b, "- Issues created: %d%s\n", metrics.Jira.Created, change(metrics.Jira.Created, prevJira.Created))
	fmt.Fprintf(&b, "- Issues done: %d%s\n", metrics.Jira.Done, change(metrics.Jira.Done, prevJira.Done))
	fmt.Fprintf(&b, "- Issues in progress: %d%s\n", metrics.Jira.InProgress, change(metrics.Jira.InProgress, prevJira.InProgress))
	fmt.Fprintf(&b, "- Issues stalled: %d%s\n\n", metrics.Jira.Stalled, change(metrics.Jira.Stalled, prevJira.Stalled))

	b.WriteString("Structure the summary as:\n")
	b.WriteString("1. Main achievements this period (2-3 sentences)\n")
	b.WriteString("2. Notable positives\n")
	b.WriteString("3. Areas needing improvement (if any)\n")
	b.WriteString("4. Suggestions for the next period\n\n")
	b.WriteString("Answer concisely and in a constructive tone.")

	return b.String()
}

func (s *SummaryService) generateOpenAI(ctx context.Context, prompt string) (*SummaryResult, error) {
	clientConfig := openai.DefaultConfig(s.cfg.APIKey)
	if s.cfg.BaseURL != "" {
		clientConfig.BaseURL = s.cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: float32(s.cfg.Temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	return &SummaryResult{Content: resp.Choices[0].Message.Content, Model: s.cfg.Model}, nil
}

func (s *SummaryService) generateAnthropic(ctx context.Context, prompt string) (*SummaryResult, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(s.cfg.APIKey),
	)

	maxTokens := int64(s.cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 1000
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.cfg.Model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: summarySystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Anthropic API error: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &SummaryResult{Content: content, Model: s.cfg.Model}, nil
}

func (s *SummaryService) generateOllama(ctx context.Context, prompt string) (*SummaryResult, error) {
	baseURL := s.cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	var content strings.Builder
	err = client.Chat(ctx, &api.ChatRequest{
		Model: s.cfg.Model,
		Messages: []api.Message{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: prompt},
		},
		Options: map[string]interface{}{
			"temperature": s.cfg.Temperature,
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Ollama API error: %w", err)
	}

	return &SummaryResult{Content: content.String(), Model: s.cfg.Model}, nil
}

func (s *SummaryService) generateGemini(ctx context.Context, prompt string) (*SummaryResult, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: s.cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini client error: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, s.cfg.Model, genai.Text(summarySystemPrompt+"\n\n"+prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	return &SummaryResult{Content: resp.Text(), Model: s.cfg.Model}, nil
}
