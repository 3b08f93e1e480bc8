package main

import (
	"context"
	"net/http"
	"time"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/sells-group/crm-extract/internal/apperr"
	"github.com/sells-group/crm-extract/internal/config"
	"github.com/sells-group/crm-extract/internal/crmsync"
	"github.com/sells-group/crm-extract/internal/llm"
	"github.com/sells-group/crm-extract/internal/resilience"
	"github.com/sells-group/crm-extract/internal/store"
	"github.com/sells-group/crm-extract/pkg/anthropic"
	"github.com/sells-group/crm-extract/pkg/hubspot"
	"github.com/sells-group/crm-extract/pkg/openai"
)

const defaultSQLitePath = "crm-extract.db"

// initStore opens the configured store and applies its migrations.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "", "memory":
		st = store.NewMemory()
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, c.Store.Pool)
	default:
		return nil, apperr.Configuration("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// openCommandStore opens the store for a one-shot command. The memory store
// starts empty in every process, so a warning is logged for it.
func openCommandStore(ctx context.Context, c *config.Config, command string) (store.Store, error) {
	if isEphemeral(c) {
		zap.L().Warn("memory store does not persist between commands; set store.driver to sqlite or postgres",
			zap.String("command", command),
		)
	}
	return initStore(ctx, c)
}

func isEphemeral(c *config.Config) bool {
	return c.Store.Driver == "" || c.Store.Driver == "memory"
}

// initCompleter builds the completion provider selected by llm.provider.
func initCompleter(c *config.Config) (llm.Completer, error) {
	if err := c.ValidateLLM(); err != nil {
		return nil, err
	}
	switch c.Provider() {
	case "anthropic":
		var opts []anthropicopt.RequestOption
		if c.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicopt.WithBaseURL(c.Anthropic.BaseURL))
		}
		client := anthropic.NewClient(c.Anthropic.Key, opts...)
		return llm.NewAnthropic(client, c.Anthropic.Model, c.Anthropic.MaxTokens), nil
	default:
		var opts []openaiopt.RequestOption
		if c.OpenAI.BaseURL != "" {
			opts = append(opts, openaiopt.WithBaseURL(c.OpenAI.BaseURL))
		}
		client := openai.NewClient(c.OpenAI.Key, c.OpenAI.Model, opts...)
		return llm.NewOpenAI(client, c.OpenAI.Model), nil
	}
}

// initHubSpot builds the HubSpot client.
func initHubSpot(c *config.Config) (hubspot.Client, error) {
	if err := c.ValidateHubSpot(); err != nil {
		return nil, err
	}
	timeout := time.Duration(c.HubSpot.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client, err := hubspot.NewClient(c.HubSpot.Token,
		hubspot.WithBaseURL(c.HubSpot.BaseURL),
		hubspot.WithHTTPClient(&http.Client{Timeout: timeout}),
		hubspot.WithRateLimit(c.HubSpot.RateLimit),
		hubspot.WithDefaultStage(c.HubSpot.DefaultStage),
		hubspot.WithPipeline(c.HubSpot.Pipeline),
		hubspot.WithBreaker(resilience.NewBreaker("hubspot",
			c.HubSpot.BreakerThreshold,
			time.Duration(c.HubSpot.BreakerCooldownSecs)*time.Second)),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// newOrchestrator wires the sync orchestrator for the configured store.
func newOrchestrator(crm crmsync.CRM, st store.Store, c *config.Config) *crmsync.Orchestrator {
	return crmsync.New(crm, st, crmsync.WithDedupe(c.Sync.DedupeConcurrent))
}
