package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BikramMondal5/MediVerify/internal/config"
	"github.com/BikramMondal5/MediVerify/internal/storage"
	"github.com/BikramMondal5/MediVerify/internal/verdict"
	"github.com/BikramMondal5/MediVerify/internal/workflow"
)

func newAnalyzer(cfg *config.Config) (verdict.Analyzer, error) {
	analyzer, err := verdict.New(verdict.Settings{
		Provider:     cfg.Analysis.Provider,
		Model:        cfg.Analysis.Model,
		Threshold:    cfg.Analysis.Threshold,
		OllamaURL:    cfg.Analysis.OllamaURL,
		OpenAIKey:    cfg.Analysis.OpenAIKey,
		OpenAIURL:    cfg.Analysis.OpenAIURL,
		GeminiAPIKey: cfg.Analysis.GeminiAPIKey,
		RetryWait:    cfg.Analysis.RetryWait,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}
	slog.Debug("Analyzer ready", "provider", cfg.Analysis.Provider, "model", cfg.Analysis.Model)
	return analyzer, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*storage.SQLiteStore, error) {
	store, err := storage.NewSQLiteStore(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

// workflowOptions maps configured analysis timing onto controller options.
// A configured delay of zero means no delay, while the controller reads zero
// as "use the default".
func workflowOptions(cfg *config.Config) workflow.Options {
	delay := cfg.Analysis.Delay
	if delay == 0 {
		delay = -1
	}
	return workflow.Options{
		AnalysisDelay:   delay,
		AnalysisTimeout: cfg.Analysis.Timeout,
	}
}
