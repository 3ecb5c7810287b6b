package verdict

import (
	"fmt"
	"net/http"
	"time"

	"github.com/BikramMondal5/MediVerify/internal/gemini"
	"github.com/BikramMondal5/MediVerify/internal/ollama"
	"github.com/BikramMondal5/MediVerify/internal/openai"
)

// Settings selects and configures an analyzer.
type Settings struct {
	Provider  string // "mock", "ollama", "openai" or "gemini"
	Model     string
	Threshold float64

	OllamaURL    string
	OpenAIKey    string
	OpenAIURL    string
	GeminiAPIKey string

	RetryWait time.Duration
}

// New builds the analyzer named by s.Provider. Real backends are wrapped
// with RetryOnce.
func New(s Settings) (Analyzer, error) {
	provider := s.Provider
	if provider == "" {
		provider = "mock"
	}

	model := s.Model
	if model == "" {
		model = DefaultModel(provider)
	}

	client := &http.Client{}
	switch provider {
	case "mock":
		return NewMock(s.Threshold), nil
	case "ollama":
		return RetryOnce(NewVision(ollama.New(s.OllamaURL, client), provider, model), s.RetryWait), nil
	case "openai":
		return RetryOnce(NewVision(openai.New(s.OpenAIKey, s.OpenAIURL, client), provider, model), s.RetryWait), nil
	case "gemini":
		return RetryOnce(NewVision(gemini.New(s.GeminiAPIKey), provider, model), s.RetryWait), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// DefaultModel names the vision model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o"
	case "ollama":
		return "llava:13b"
	case "gemini":
		return "gemini-1.5-flash"
	default:
		return ""
	}
}
