package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"haul/internal/observability"
)

const defaultModel = "gemini-2.0-flash"

// GeminiAdvisor implements Advisor using Google's Gemini models.
type GeminiAdvisor struct {
	client   *genai.Client
	generate func(ctx context.Context, prompt string) (string, error)
	logger   *slog.Logger
}

// NewGeminiAdvisor initializes a Gemini client for the given model.
func NewGeminiAdvisor(ctx context.Context, apiKey, modelName string) (*GeminiAdvisor, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: missing api key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}
	if modelName == "" {
		modelName = defaultModel
	}
	model := client.GenerativeModel(modelName)

	// Force JSON response for structured parsing.
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"tips": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"tips"},
	}
	model.SetTemperature(0.4)

	a := newAdvisor(func(ctx context.Context, prompt string) (string, error) {
		return generateText(ctx, model, prompt)
	})
	a.client = client
	return a, nil
}

func newAdvisor(generate func(ctx context.Context, prompt string) (string, error)) *GeminiAdvisor {
	return &GeminiAdvisor{generate: generate, logger: slog.Default()}
}

func (a *GeminiAdvisor) WithLogger(logger *slog.Logger) *GeminiAdvisor {
	a.logger = logger
	return a
}

// Close cleans up the Gemini client resources.
func (a *GeminiAdvisor) Close() {
	if a.client != nil {
		a.client.Close()
	}
}

// GetTips asks the model for up to MaxTips short transport tips for item.
func (a *GeminiAdvisor) GetTips(ctx context.Context, item string) []string {
	item = strings.TrimSpace(item)
	if item == "" {
		return FallbackTips()
	}
	text, err := a.generate(ctx, buildTipsPrompt(item))
	if err != nil {
		return a.fallback(item, err)
	}
	tips, err := parseTips(text)
	if err != nil {
		return a.fallback(item, err)
	}
	return tips
}

func (a *GeminiAdvisor) fallback(item string, err error) []string {
	observability.AdviceFallback.Inc()
	a.logger.Warn("gemini tips failed, using fallback", "item", item, "error", err)
	return FallbackTips()
}

func buildTipsPrompt(item string) string {
	return fmt.Sprintf("Provide 3 short, practical tips for transporting: %s. "+
		"Format as a JSON object with a 'tips' array of strings.", item)
}

func generateText(ctx context.Context, model *genai.GenerativeModel, prompt string) (string, error) {
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", errors.Wrap(err, "gemini generate content")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: no response candidates")
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return text.String(), nil
}

// parseTips decodes the model output, dropping blank entries and keeping at
// most MaxTips.
func parseTips(raw string) ([]string, error) {
	var res tipsResponse
	if err := json.Unmarshal([]byte(cleanJSONString(raw)), &res); err != nil {
		return nil, errors.Wrap(err, "parse tips response")
	}
	tips := make([]string, 0, MaxTips)
	for _, t := range res.Tips {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		tips = append(tips, t)
		if len(tips) == MaxTips {
			break
		}
	}
	if len(tips) == 0 {
		return nil, errors.New("gemini: empty tips")
	}
	return tips, nil
}

// cleanJSONString removes markdown code blocks if present (e.g. ```json ... ```)
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
