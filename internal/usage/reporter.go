package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/noesis-labs/noesis/internal/config"
	"github.com/noesis-labs/noesis/pkg/schema"
)

// reportTimeout bounds one best-effort ledger write. The write runs off the
// request path with its own deadline.
const reportTimeout = 15 * time.Second

// Reporter computes a cost estimate for each turn and hands it to the
// ledger on a background goroutine.
type Reporter struct {
	ledger  Ledger
	program *vm.Program
	pricing config.PricingConfig
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewReporter compiles the configured cost formula once. The formula sees
// input_tokens, output_tokens, input_rate_per_mtok and output_rate_per_mtok
// as top-level variables.
func NewReporter(ledger Ledger, pricing config.PricingConfig, logger *slog.Logger) (*Reporter, error) {
	program, err := expr.Compile(pricing.CostFormula,
		expr.Env(costEnv(schema.Usage{}, pricing)),
		expr.AsFloat64(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig,
			"compile cost formula %q: %s", pricing.CostFormula, err.Error()).WithCause(err)
	}
	return &Reporter{ledger: ledger, program: program, pricing: pricing, logger: logger}, nil
}

func costEnv(u schema.Usage, pricing config.PricingConfig) map[string]any {
	return map[string]any{
		"input_tokens":         float64(u.InputTokens),
		"output_tokens":        float64(u.OutputTokens),
		"input_rate_per_mtok":  pricing.InputPerMTok,
		"output_rate_per_mtok": pricing.OutputPerMTok,
	}
}

// Cost evaluates the compiled formula for one turn's usage.
func (r *Reporter) Cost(u schema.Usage) (float64, error) {
	out, err := vm.Run(r.program, costEnv(u, r.pricing))
	if err != nil {
		return 0, fmt.Errorf("evaluate cost formula: %w", err)
	}
	cost, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("cost formula returned %T, want float64", out)
	}
	return cost, nil
}

// Report records one turn asynchronously. Failures are logged and
// discarded; the caller never waits on the ledger.
func (r *Reporter) Report(ctx context.Context, identity string, u schema.Usage) {
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		return
	}
	cost, err := r.Cost(u)
	if err != nil {
		r.logger.WarnContext(ctx, "cost estimate failed", slog.String("error", err.Error()))
		cost = 0
	}

	entry := &Entry{
		Identity:     identity,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.InputTokens + u.OutputTokens,
		CostEstimate: cost,
		CreatedAt:    time.Now().UTC(),
	}

	detached := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		recordCtx, cancel := context.WithTimeout(detached, reportTimeout)
		defer cancel()
		if err := r.ledger.Record(recordCtx, entry); err != nil {
			r.logger.WarnContext(recordCtx, "usage record dropped",
				slog.String("identity", identity),
				slog.String("error", err.Error()))
		}
	}()
}

// Flush waits for in-flight records. Called on shutdown and in tests.
func (r *Reporter) Flush() {
	r.wg.Wait()
}

// NewLedger builds the ledger selected by configuration.
func NewLedger(ctx context.Context, cfg config.UsageConfig) (Ledger, error) {
	switch cfg.Backend {
	case "", "none":
		return NopLedger{}, nil
	case "http":
		return NewHTTPLedger(cfg.Endpoint), nil
	case "libsql":
		return NewLibSQLLedger(ctx, cfg.DBPath)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "unknown usage backend %q", cfg.Backend)
	}
}
