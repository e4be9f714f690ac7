package main

import (
	"context"
	"fmt"
	"log/slog"

	"taskcal/internal/config"
	"taskcal/internal/google"
	"taskcal/internal/llm"
	"taskcal/internal/models"
	"taskcal/internal/rag"
	"taskcal/internal/store"
	"taskcal/internal/syncer"

	"golang.org/x/oauth2"
)

// environment bundles what every command needs.
type environment struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
}

func setup(ctx context.Context) (*environment, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.LogLevel)

	st, err := store.Open(ctx, logger, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	return &environment{cfg: cfg, logger: logger, store: st}, nil
}

func (e *environment) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("Failed to close database", "error", err)
	}
}

func (e *environment) retriever(ctx context.Context) (*rag.Retriever, error) {
	client, err := llm.New(ctx, e.logger, e.cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	return rag.NewRetriever(e.logger, e.store, client), nil
}

func (e *environment) pipeline(ctx context.Context) (*rag.Pipeline, error) {
	client, err := llm.New(ctx, e.logger, e.cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	retriever := rag.NewRetriever(e.logger, e.store, client)
	e.logger.Debug("Estimation pipeline ready", "model", client.Name(), "bounds", e.cfg.Estimate.Bounds)
	return rag.NewPipeline(e.logger, client, retriever, rag.Options{
		Bounds:      e.cfg.Estimate.Bounds,
		MaxAttempts: e.cfg.Estimate.MaxAttempts,
		TopK:        e.cfg.Estimate.TopK,
	}), nil
}

func (e *environment) syncer(oauthCfg *oauth2.Config, dryRun bool) *syncer.Syncer {
	remote := func(ctx context.Context, userID string) (syncer.Remote, error) {
		httpClient, err := google.HTTPClient(ctx, e.logger, oauthCfg, e.store, userID)
		if err != nil {
			return nil, err
		}
		client, err := google.NewCalendarClient(ctx, e.logger, httpClient)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return syncer.NewSyncer(e.logger, e.store, remote, dryRun, e.cfg.Sync.Days)
}

// googleCalendar returns a Calendar client for the account linked to email.
func (e *environment) googleCalendar(ctx context.Context, email string) (*google.CalendarClient, *models.User, error) {
	u, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("could not find user %s: %w", email, err)
	}
	oauthCfg, err := google.OAuthConfig(e.cfg.Google.ClientID, e.cfg.Google.ClientSecret, google.OutOfBandRedirect)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get google oauth config: %w", err)
	}
	httpClient, err := google.HTTPClient(ctx, e.logger, oauthCfg, e.store, u.ID)
	if err != nil {
		return nil, nil, err
	}
	client, err := google.NewCalendarClient(ctx, e.logger, httpClient)
	if err != nil {
		return nil, nil, err
	}
	return client, u, nil
}
