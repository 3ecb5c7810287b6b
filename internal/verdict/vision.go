package verdict

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/BikramMondal5/MediVerify/internal/media"
	"github.com/BikramMondal5/MediVerify/internal/models"
	"github.com/BikramMondal5/MediVerify/internal/providers"
)

// Vision asks a vision-capable LLM whether the packaging looks genuine.
type Vision struct {
	provider providers.Provider
	name     string
	model    string
}

func NewVision(provider providers.Provider, name, model string) *Vision {
	return &Vision{provider: provider, name: name, model: model}
}

func (v *Vision) Evaluate(ctx context.Context, imageDataURI string) (models.Verdict, error) {
	mimeType, data, err := media.DecodeDataURI(imageDataURI)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("%w: %v", ErrAnalysisFailure, err)
	}

	raw, err := v.provider.Complete(ctx, providers.Config{
		Model:       v.model,
		Temperature: 0.1, // Low temperature for consistent answers
		Prompt:      buildAuthenticityPrompt(),
		Images:      []providers.Image{{MIMEType: mimeType, Data: data}},
		JSON:        true,
	})
	if err != nil {
		return models.Verdict{}, fmt.Errorf("%w: %s: %v", ErrAnalysisFailure, v.name, err)
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		return models.Verdict{}, err
	}
	slog.Info("Vision verdict", "provider", v.name, "model", v.model, "outcome", verdict.Outcome, "confidence", verdict.Confidence)
	return verdict, nil
}

func buildAuthenticityPrompt() string {
	return `You are a pharmaceutical packaging inspector who checks medicine packages for signs of counterfeiting.

Examine the photo of the medicine packaging and look for:
   - Misspellings or inconsistent fonts in the brand and drug names
   - Blurry or low-resolution printing, smudged logos
   - Missing or malformed batch number, manufacturing and expiry dates
   - Damaged, re-glued or missing seals and holograms
   - Colours or layout that differ from the genuine product

OUTPUT FORMAT:
Respond with ONLY a JSON object in the following format:

{
  "authentic": true or false,
  "confidence": integer from 0 to 100,
  "notes": "Brief summary of what you observed"
}`
}

// parseVerdict reads the JSON verdict, tolerating markdown code fences.
func parseVerdict(response string) (models.Verdict, error) {
	var result struct {
		Authentic  *bool   `json:"authentic"`
		Confidence float64 `json:"confidence"`
		Notes      string  `json:"notes"`
	}

	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return models.Verdict{}, fmt.Errorf("%w: unparseable response: %v", ErrAnalysisFailure, err)
	}
	if result.Authentic == nil {
		return models.Verdict{}, fmt.Errorf("%w: response has no authentic field", ErrAnalysisFailure)
	}

	confidence := result.Confidence
	// some models answer with a 0-1 probability
	if confidence > 0 && confidence <= 1 {
		confidence *= 100
	}

	v := models.NewVerdict(*result.Authentic, clampConfidence(int(math.Round(confidence))))
	v.Notes = result.Notes
	return v, nil
}
