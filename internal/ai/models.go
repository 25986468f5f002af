package ai

import "context"

// Advisor suggests transport tips for a cargo item. Implementations never
// fail: any provider error yields FallbackTips.
type Advisor interface {
	GetTips(ctx context.Context, item string) []string
}

// MaxTips caps how many tips are returned to clients.
const MaxTips = 3

// tipsResponse is the JSON object the model is asked to produce.
type tipsResponse struct {
	Tips []string `json:"tips"`
}

var fallbackTips = []string{
	"Ensure item is secured",
	"Check dimensions before loading",
	"Use protective padding",
}

// FallbackTips returns the generic advice used whenever the provider is unavailable.
func FallbackTips() []string {
	out := make([]string, len(fallbackTips))
	copy(out, fallbackTips)
	return out
}

// Static always answers with the fallback tips. It stands in for Gemini when
// no API key is configured.
type Static struct{}

func (Static) GetTips(context.Context, string) []string {
	return FallbackTips()
}
