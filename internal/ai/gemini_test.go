package ai

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haul/internal/logging"
)

func stubAdvisor(text string, err error) (*GeminiAdvisor, *[]string) {
	var prompts []string
	a := newAdvisor(func(_ context.Context, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return text, err
	}).WithLogger(logging.NewLoggerTo(io.Discard, "error"))
	return a, &prompts
}

func TestGetTips(t *testing.T) {
	tests := []struct {
		name string
		text string
		err  error
		want []string
	}{
		{
			name: "plain json",
			text: `{"tips": ["Wrap the legs", "Remove cushions", "Load upright"]}`,
			want: []string{"Wrap the legs", "Remove cushions", "Load upright"},
		},
		{
			name: "markdown fenced",
			text: "```json\n{\"tips\": [\"Drain the water\"]}\n```",
			want: []string{"Drain the water"},
		},
		{
			name: "capped and trimmed",
			text: `{"tips": [" a ", "", "b", "c", "d"]}`,
			want: []string{"a", "b", "c"},
		},
		{
			name: "provider error",
			err:  errors.New("quota exceeded"),
			want: FallbackTips(),
		},
		{
			name: "not json",
			text: "Sure! Here are some tips.",
			want: FallbackTips(),
		},
		{
			name: "empty list",
			text: `{"tips": []}`,
			want: FallbackTips(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := stubAdvisor(tt.text, tt.err)
			assert.Equal(t, tt.want, a.GetTips(context.Background(), "Sofa"))
		})
	}
}

func TestGetTipsPrompt(t *testing.T) {
	a, prompts := stubAdvisor(`{"tips": ["x"]}`, nil)
	a.GetTips(context.Background(), "  Piano ")
	require.Len(t, *prompts, 1)
	assert.Contains(t, (*prompts)[0], "transporting: Piano.")
	assert.Contains(t, (*prompts)[0], "'tips' array")
}

func TestGetTipsBlankItemSkipsProvider(t *testing.T) {
	a, prompts := stubAdvisor(`{"tips": ["x"]}`, nil)
	assert.Equal(t, FallbackTips(), a.GetTips(context.Background(), "   "))
	assert.Empty(t, *prompts)
}

func TestFallbackTipsIsACopy(t *testing.T) {
	tips := FallbackTips()
	tips[0] = "changed"
	assert.Equal(t, "Ensure item is secured", FallbackTips()[0])
	assert.Len(t, Static{}.GetTips(context.Background(), "anything"), MaxTips)
}

func TestNewGeminiAdvisorRequiresKey(t *testing.T) {
	_, err := NewGeminiAdvisor(context.Background(), " ", "")
	require.Error(t, err)
}
