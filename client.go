package flightscout

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flightscout/flightscout/agent"
	"github.com/flightscout/flightscout/compaction"
	"github.com/flightscout/flightscout/maintenance"
	"github.com/flightscout/flightscout/storage"
)

// Client assembles the full session stack from configuration: the store, the
// agent runtime, the compaction coordinator, the orchestrator, and the
// retention sweeper.
type Client struct {
	orchestrator *Orchestrator
	store        storage.Store
	sweeper      *maintenance.Sweeper
	pool         *pgxpool.Pool
	sqlite       *storage.SQLiteStore
}

// NewClient builds a Client from config. A nil config selects the defaults;
// a nil logger disables logging.
func NewClient(ctx context.Context, config *Config, logger compaction.Logger) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	} else {
		config.ApplyDefaults()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Client{}

	switch config.Storage.Driver {
	case DriverPostgres:
		pool, err := pgxpool.New(ctx, config.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := storage.NewPostgresStore(pool)
		if err := store.Init(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		c.pool = pool
		c.store = store
	default:
		store, err := storage.OpenSQLite(config.Storage.DSN)
		if err != nil {
			return nil, err
		}
		c.sqlite = store
		c.store = store
	}

	runtime := agent.NewOpenAIRuntime(config.OpenAI)

	anthropicClient := anthropic.NewClient(
		option.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
	)
	summarizer := compaction.NewAnthropicSummarizer(
		&anthropicClient,
		config.Compaction.SummarizerModel,
		config.Compaction.SummarizerMaxTokens,
	)
	compactor := compaction.NewCoordinator(c.store, summarizer, &config.Compaction, logger)

	c.orchestrator = NewOrchestrator(c.store, runtime, runtime, compactor, config, logger)

	if config.Retention.Days > 0 {
		c.sweeper = maintenance.NewSweeper(c.store, &maintenance.SweeperConfig{
			Interval:      config.Retention.Interval,
			RetentionDays: config.Retention.Days,
		})
	}

	return c, nil
}

// Orchestrator returns the session orchestrator.
func (c *Client) Orchestrator() *Orchestrator {
	return c.orchestrator
}

// Store returns the underlying session store.
func (c *Client) Store() storage.Store {
	return c.store
}

// Start launches background services (the retention sweeper, when enabled).
func (c *Client) Start(ctx context.Context) error {
	if c.sweeper != nil {
		return c.sweeper.Start(ctx)
	}
	return nil
}

// Stop stops background services and releases storage resources.
func (c *Client) Stop(ctx context.Context) error {
	if c.sweeper != nil {
		if err := c.sweeper.Stop(ctx); err != nil && err != maintenance.ErrNotStarted {
			return err
		}
	}
	if c.pool != nil {
		c.pool.Close()
	}
	if c.sqlite != nil {
		return c.sqlite.Close()
	}
	return nil
}
