package push

import (
	"context"

	"go.uber.org/zap"

	"dealership_backend/internal/metrics"
)

// DefaultBatchSize matches the FCM multicast limit.
const DefaultBatchSize = 500

// Message is what a device shows, plus the data the app uses for navigation.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Outcome is the provider's verdict for one target.
type Outcome struct {
	Token     string
	Success   bool
	Permanent bool // the token can never be delivered to again
	Err       error
}

// Provider sends one batch. It must not be handed more than its batch size.
// A returned error means the whole batch failed transiently.
type Provider interface {
	Name() string
	SendBatch(ctx context.Context, tokens []string, msg Message) ([]Outcome, error)
}

// Result aggregates outcomes across every batch of a Send.
type Result struct {
	SuccessCount   int
	FailureCount   int
	InvalidTargets []string
}

// Gateway chunks targets into provider-sized batches and accumulates results.
// It never retries. With no provider it is a no-op reporting zero counts.
type Gateway struct {
	provider  Provider
	batchSize int
	logger    *zap.Logger
}

// NewGateway creates a gateway. provider may be nil for degraded operation.
func NewGateway(provider Provider, batchSize int, logger *zap.Logger) *Gateway {
	if batchSize <= 0 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}
	return &Gateway{
		provider:  provider,
		batchSize: batchSize,
		logger:    logger.Named("push_gateway"),
	}
}

// Enabled reports whether a provider is configured.
func (g *Gateway) Enabled() bool {
	return g.provider != nil
}

// Send delivers msg to every token. Duplicate and empty tokens are dropped first.
func (g *Gateway) Send(ctx context.Context, tokens []string, msg Message) Result {
	var res Result
	if g.provider == nil {
		if len(tokens) > 0 {
			g.logger.Debug("push skipped: no provider configured", zap.Int("targets", len(tokens)))
		}
		return res
	}

	tokens = dedupe(tokens)
	if len(tokens) == 0 {
		return res
	}

	for start := 0; start < len(tokens); start += g.batchSize {
		end := start + g.batchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]
		metrics.PushBatches.Inc()

		outcomes, err := g.provider.SendBatch(ctx, batch, msg)
		if err != nil {
			res.FailureCount += len(batch)
			metrics.PushResults.WithLabelValues("failure").Add(float64(len(batch)))
			g.logger.Warn("push batch failed",
				zap.String("provider", g.provider.Name()),
				zap.Int("batch_size", len(batch)),
				zap.String("title", msg.Title),
				zap.Error(err))
			continue
		}

		for _, o := range outcomes {
			switch {
			case o.Success:
				res.SuccessCount++
				metrics.PushResults.WithLabelValues("success").Inc()
			case o.Permanent:
				res.FailureCount++
				res.InvalidTargets = append(res.InvalidTargets, o.Token)
				metrics.PushResults.WithLabelValues("invalid").Inc()
			default:
				res.FailureCount++
				metrics.PushResults.WithLabelValues("failure").Inc()
				g.logger.Debug("push target failed", zap.String("provider", g.provider.Name()), zap.Error(o.Err))
			}
		}
	}

	g.logger.Info("push sent",
		zap.String("provider", g.provider.Name()),
		zap.Int("targets", len(tokens)),
		zap.Int("success", res.SuccessCount),
		zap.Int("failure", res.FailureCount),
		zap.Int("invalid", len(res.InvalidTargets)))
	return res
}

func dedupe(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
