package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alibot/reviewdash/internal/config"
	"github.com/alibot/reviewdash/internal/models"
	"github.com/alibot/reviewdash/pkg/logger"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// AnalysisService runs the AI code analysis and coerces the model output
// into the normalized results payload.
type AnalysisService struct {
	cfg *config.AIConfig
}

func NewAnalysisService(cfg *config.AIConfig) *AnalysisService {
	return &AnalysisService{cfg: cfg}
}

// Analyze sends the code to the configured provider and returns a normalized
// payload. The returned payload always has all three sub-documents populated.
func (s *AnalysisService) Analyze(ctx context.Context, code, language string) (*ResultsPayload, error) {
	prompt := buildAnalysisPrompt(code, language)

	content, err := s.callLLM(ctx, prompt)
	if err != nil {
		return nil, err
	}

	payload, err := decodeAnalysisContent(content)
	if err != nil {
		logger.Warn().Err(err).Msg("model returned undecodable analysis, using fallback payload")
		payload = fallbackPayload(code, err)
	}

	normalizeResult(payload)
	return payload, nil
}

// callLLM dispatches to the provider configured for this deployment.
func (s *AnalysisService) callLLM(ctx context.Context, prompt string) (string, error) {
	logger.Infof("[AI] Using provider: %s, model: %s", s.cfg.Provider, s.cfg.Model)

	switch s.cfg.Provider {
	case "anthropic":
		return s.callAnthropic(ctx, prompt)
	case "ollama":
		return s.callOllama(ctx, prompt)
	case "gemini":
		return s.callGemini(ctx, prompt)
	default:
		// openai and OpenAI-compatible endpoints
		return s.callOpenAI(ctx, prompt)
	}
}

func (s *AnalysisService) callOpenAI(ctx context.Context, prompt string) (string, error) {
	clientConfig := openai.DefaultConfig(s.cfg.APIKey)
	if s.cfg.BaseURL != "" {
		clientConfig.BaseURL = s.cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	temperature := float32(0.3)
	if s.cfg.Temperature > 0 {
		temperature = float32(s.cfg.Temperature)
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *AnalysisService) callAnthropic(ctx context.Context, prompt string) (string, error) {
	client := anthropic.NewClient(option.WithAPIKey(s.cfg.APIKey))

	maxTokens := int64(s.cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}
	model := s.cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return content.String(), nil
}

func (s *AnalysisService) callOllama(ctx context.Context, prompt string) (string, error) {
	baseURL := s.cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := s.cfg.Model
	if model == "" {
		model = "llama3"
	}

	var content strings.Builder
	err = client.Chat(ctx, &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
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
		return "", fmt.Errorf("Ollama API error: %w", err)
	}
	return content.String(), nil
}

func (s *AnalysisService) callGemini(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: s.cfg.APIKey})
	if err != nil {
		return "", fmt.Errorf("Gemini client error: %w", err)
	}

	model := s.cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	return resp.Text(), nil
}

func buildAnalysisPrompt(code, language string) string {
	return fmt.Sprintf(`Analyze the following %[1]s code and provide a structured analysis.

CODE TO ANALYZE:
`+"```%[1]s\n%[2]s\n```"+`

INSTRUCTIONS:
- Return ONLY a valid JSON object with NO explanatory text
- Do NOT include markdown formatting around the JSON

REQUIRED JSON STRUCTURE:
{
  "analysis": {
    "summary": "Brief summary of what this code does and overall quality assessment",
    "strengths": ["specific strength 1", "specific strength 2"],
    "improvements": ["specific improvement 1", "specific improvement 2"],
    "categories": {
      "performance": {"score": 7, "issues": 1, "suggestions": 2},
      "security": {"score": 8, "issues": 0, "suggestions": 1},
      "maintainability": {"score": 6, "issues": 2, "suggestions": 2},
      "style": {"score": 9, "issues": 0, "suggestions": 1}
    }
  },
  "metrics": {
    "score": 85,
    "complexity": 3.2,
    "maintainability_index": 75.5,
    "cyclomatic_complexity": 5,
    "cognitive_complexity": 8,
    "duplicated_lines": 0,
    "test_coverage": 0.0
  },
  "issues": [
    {
      "type": "performance",
      "severity": "medium",
      "line": 10,
      "column": 5,
      "title": "Short issue title",
      "message": "Explanation of the problem",
      "suggestion": "How to fix it",
      "code_snippet": "offending code",
      "fixed_code": "corrected code"
    }
  ]
}

Guidelines:
- Score should be 0-100 based on overall code quality
- Complexity should be 1-10, maintainability index 0-100
- Severity can be: "high", "medium", "low"
- Type can be: "performance", "security", "maintainability", "style", "bug", "logic"
- Always provide at least 2-3 specific, actionable issues with real line numbers`, language, code)
}

// decodeAnalysisContent strips markdown fences and decodes the model output,
// falling back to extracting the outermost brace-delimited object when the
// response embeds JSON in prose.
func decodeAnalysisContent(content string) (*ResultsPayload, error) {
	content = stripMarkdownFences(content)
	if content == "" {
		return nil, fmt.Errorf("empty analysis response")
	}

	var payload ResultsPayload
	if err := json.Unmarshal([]byte(content), &payload); err == nil {
		return &payload, nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err == nil {
			return &payload, nil
		}
	}
	return nil, fmt.Errorf("analysis response is not valid JSON")
}

func stripMarkdownFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimSpace(strings.TrimPrefix(content, "```json"))
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimSpace(strings.TrimPrefix(content, "```"))
	}
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// fallbackPayload produces a degraded but well-formed payload when the model
// output could not be decoded, so a review still completes with usable data.
func fallbackPayload(code string, cause error) *ResultsPayload {
	lines := len(strings.Split(code, "\n"))
	return &ResultsPayload{
		Analysis: &AnalysisDoc{
			Summary:      fmt.Sprintf("Analysis could not be fully completed for %d lines of code.", lines),
			Strengths:    []string{"Code structure is readable"},
			Improvements: []string{"Try resubmitting with clearer formatting"},
			Categories:   map[string]models.CategoryScore{},
		},
		Metrics: &MetricsDoc{
			Score:                50,
			Complexity:           2.0,
			MaintainabilityIndex: 60.0,
		},
		Issues: []IssueDoc{
			{
				Type:       "system",
				Severity:   models.SeverityLow,
				Line:       1,
				Title:      "Analysis Unavailable",
				Message:    fmt.Sprintf("The AI response could not be processed: %v", cause),
				Suggestion: "Try resubmitting or breaking the code into smaller segments.",
			},
			{
				Type:       "general",
				Severity:   models.SeverityMedium,
				Line:       1,
				Title:      "Manual Review Recommended",
				Message:    "Automated analysis is incomplete; a manual code review can still provide value.",
				Suggestion: "Have a peer review this code for potential improvements.",
			},
		},
	}
}

// normalizeResult enforces the payload invariants in place: full category set,
// metric ranges, valid severities, merged column fields, sequential issue ids,
// and synthesized per-category issues when the model returned none.
func normalizeResult(p *ResultsPayload) {
	if p.Analysis == nil {
		p.Analysis = &AnalysisDoc{}
	}
	if p.Metrics == nil {
		p.Metrics = &MetricsDoc{}
	}

	a := p.Analysis
	if a.Summary == "" {
		a.Summary = "Code analysis completed"
	}
	if len(a.Strengths) == 0 {
		a.Strengths = []string{"Code structure is present"}
	}
	if len(a.Improvements) == 0 {
		a.Improvements = []string{"Consider adding more comments"}
	}
	if a.Categories == nil {
		a.Categories = map[string]models.CategoryScore{}
	}
	for _, key := range models.RecognizedCategories {
		cat, ok := a.Categories[key]
		if !ok {
			a.Categories[key] = models.CategoryScore{Score: 6, Issues: 0, Suggestions: 1}
			continue
		}
		if cat.Score == 0 {
			cat.Score = 6
		}
		a.Categories[key] = cat
	}

	m := p.Metrics
	if m.Score == 0 {
		m.Score = 70
	}
	if m.Complexity == 0 {
		m.Complexity = 2.0
	}
	if m.MaintainabilityIndex == 0 {
		m.MaintainabilityIndex = 70.0
	}
	m.Score = clamp(m.Score, 0, 100)
	m.Complexity = clamp(m.Complexity, 1, 10)
	m.MaintainabilityIndex = clamp(m.MaintainabilityIndex, 0, 100)

	for i := range p.Issues {
		issue := &p.Issues[i]
		issue.ID = i + 1
		if issue.Type == "" {
			issue.Type = "general"
		}
		switch issue.Severity {
		case models.SeverityHigh, models.SeverityMedium, models.SeverityLow:
		default:
			issue.Severity = models.SeverityMedium
		}
		if issue.Line == 0 {
			issue.Line = 1
		}
		// Legacy payloads used "column"; keep both fields in sync.
		if issue.ColumnNumber == 0 && issue.Column != 0 {
			issue.ColumnNumber = issue.Column
		}
		if issue.ColumnNumber == 0 {
			issue.ColumnNumber = 1
		}
		issue.Column = issue.ColumnNumber
		if issue.Title == "" {
			issue.Title = "Code Issue"
		}
		if issue.Message == "" {
			issue.Message = "Issue detected"
		}
		if issue.Suggestion == "" {
			issue.Suggestion = "Review this code"
		}
	}

	// When the model reported category issue counts but listed no issues,
	// synthesize one generic issue per affected category.
	if len(p.Issues) == 0 {
		for _, key := range models.RecognizedCategories {
			cat := a.Categories[key]
			if cat.Issues > 0 {
				p.Issues = append(p.Issues, IssueDoc{
					ID:           len(p.Issues) + 1,
					Type:         key,
					Severity:     models.SeverityMedium,
					Line:         1,
					ColumnNumber: 1,
					Column:       1,
					Title:        capitalize(key) + " area needs attention",
					Message:      fmt.Sprintf("The %s aspect of this code could be improved based on analysis.", key),
					Suggestion:   fmt.Sprintf("Review the code for %s best practices and optimization opportunities.", key),
				})
			}
		}
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DerivedMetrics are roll-up numbers computed from an analysis payload.
type DerivedMetrics struct {
	LinesOfCode     int
	NonEmptyLines   int
	TotalIssues     int
	HighSeverity    int
	MediumSeverity  int
	ImprovementRate float64
}

// DeriveMetrics computes the roll-up metrics stored on the review record.
func DeriveMetrics(p *ResultsPayload, code string) DerivedMetrics {
	lines := strings.Split(code, "\n")
	nonEmpty := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			nonEmpty++
		}
	}

	d := DerivedMetrics{
		LinesOfCode:   len(lines),
		NonEmptyLines: nonEmpty,
		TotalIssues:   len(p.Issues),
	}
	for _, issue := range p.Issues {
		switch issue.Severity {
		case models.SeverityHigh:
			d.HighSeverity++
		case models.SeverityMedium:
			d.MediumSeverity++
		}
	}
	if p.Metrics != nil {
		d.ImprovementRate = clamp(p.Metrics.Score, 0, 100)
	}
	return d
}
