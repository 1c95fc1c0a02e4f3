package committee

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"orderdesk-hq/callisto/pkg/order"
)

// Config contains committee configuration.
type Config struct {
	// PerProviderTimeout bounds each provider's review. Default: 30s.
	PerProviderTimeout time.Duration

	// Aggregation tuning.
	Aggregate AggregateConfig
}

// DefaultConfig returns the default committee configuration.
func DefaultConfig() Config {
	return Config{
		PerProviderTimeout: 30 * time.Second,
		Aggregate:          DefaultAggregateConfig(),
	}
}

// Committee runs the three-provider schema-mapping review.
type Committee struct {
	config  Config
	pool    []Provider
	weights *Weights
	logger  *slog.Logger
}

// New creates a committee over the provider pool.
func New(config Config, pool []Provider, weights *Weights) *Committee {
	if config.PerProviderTimeout <= 0 {
		config.PerProviderTimeout = 30 * time.Second
	}
	return &Committee{
		config:  config,
		pool:    pool,
		weights: weights,
		logger:  slog.Default().With("component", "committee"),
	}
}

// Review selects three diverse providers from the seed, fans the evidence
// pack out in parallel under per-provider timeouts, validates every output
// and aggregates the surviving votes.
//
// Degraded operation: 2 valid votes still yield a result; exactly 1 yields
// a result flagged requires_human_input; zero returns UnavailableError.
func (c *Committee) Review(ctx context.Context, pack *Pack, seed int64) (*Result, error) {
	if err := pack.Validate(); err != nil {
		return nil, err
	}

	selected, err := SelectProviders(c.pool, seed)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(selected))
	for i, p := range selected {
		names[i] = p.Name()
	}
	c.logger.Info("committee selected", "providers", names, "seed", seed)

	// Parallel fan-out: a slow or invalid provider never blocks the rest.
	votes := make([]Vote, len(selected))
	var wg sync.WaitGroup
	for i, p := range selected {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, c.config.PerProviderTimeout)
			defer cancel()

			start := time.Now()
			result, err := p.Review(callCtx, pack)
			votes[i] = Vote{
				Provider: p.Name(),
				Family:   p.Family(),
				Weight:   c.weights.Get(p.Name()),
				Result:   result,
				Err:      err,
			}
			if err != nil {
				c.logger.Warn("provider vote discarded",
					"provider", p.Name(),
					"elapsed", time.Since(start),
					"error", err,
				)
			}
		}(i, p)
	}
	wg.Wait()

	var valid, discarded []Vote
	for _, v := range votes {
		if v.Err == nil && v.Result != nil {
			valid = append(valid, v)
		} else {
			discarded = append(discarded, v)
		}
	}

	if len(valid) == 0 {
		return nil, &UnavailableError{Discarded: len(discarded)}
	}

	fields := make([]order.Field, 0, len(pack.Fields))
	for _, f := range pack.Fields {
		fields = append(fields, order.Field(f))
	}

	result := &Result{
		Fields:         Aggregate(valid, fields, c.config.Aggregate),
		ValidVotes:     valid,
		DiscardedVotes: discarded,
		Seed:           seed,
	}
	if len(valid) == 1 {
		result.RequiresHumanInput = true
	}
	for _, fc := range result.Fields {
		if fc.RequiresHumanInput {
			result.RequiresHumanInput = true
		}
	}

	c.logger.Info("committee review finished",
		"valid_votes", len(valid),
		"discarded_votes", len(discarded),
		"requires_human_input", result.RequiresHumanInput,
	)
	return result, nil
}
