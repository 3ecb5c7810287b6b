package providers

import (
	"context"
)

// Image is an inline image attached to a prompt
type Image struct {
	MIMEType string
	Data     []byte
}

// Config represents the configuration for a single vision request
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	Images      []Image
	// JSON asks the provider to constrain output to a JSON object when supported
	JSON bool
}

// Provider defines the interface for a vision-capable LLM provider
type Provider interface {
	Complete(ctx context.Context, config Config) (string, error)
}
