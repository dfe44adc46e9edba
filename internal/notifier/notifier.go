// Package notifier implements C12 Notifier: spec.md places its wire format
// out of scope beyond the opaque record it carries, so LogNotifier is the
// one concrete sink provided, following the teacher's own writeEvent
// pattern of a single side-effecting function standing in for a richer
// external transport.
package notifier

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/daisy9542/meme-alert-bot/internal/domain"
	"github.com/daisy9542/meme-alert-bot/internal/logging"
)

// Record is the opaque alert payload spec.md §6 names: level, market
// identity, and a headline/body pair the evaluator has already rendered.
type Record struct {
	Level      string
	Chain      domain.Chain
	MarketType domain.MarketType
	Address    common.Address
	Token0     common.Address
	Token1     common.Address
	TargetSide string
	Headline   string
	Body       string
}

// Notifier delivers a Record. Implementations must not block the caller
// for longer than a best-effort attempt; AlertEvaluator does not retry.
type Notifier interface {
	Notify(ctx context.Context, rec Record)
}

// LogNotifier formats a Record through internal/logging's key=value line
// style, the same one every other component uses for its stats/rejection
// lines.
type LogNotifier struct {
	log *logging.Logger
}

// NewLogNotifier builds a LogNotifier writing through log.
func NewLogNotifier(log *logging.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs rec as a single line. Never blocks on I/O beyond the
// underlying *log.Logger's own write.
func (n *LogNotifier) Notify(ctx context.Context, rec Record) {
	if n.log == nil {
		return
	}
	n.log.Statsf("alert "+rec.Headline,
		"level", rec.Level,
		"chain", rec.Chain,
		"market_type", rec.MarketType,
		"address", rec.Address.Hex(),
		"token0", rec.Token0.Hex(),
		"token1", rec.Token1.Hex(),
		"target_side", rec.TargetSide,
		"body", rec.Body,
	)
}
