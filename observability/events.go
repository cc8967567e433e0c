package observability

import (
	"log/slog"

	"splitpay/core/events"
	"splitpay/core/types"
)

// Emitter bridges engine events into structured logs and the settlement
// metric collectors. It satisfies events.Emitter and is what the daemon hands
// to the node.
type Emitter struct {
	logger  *slog.Logger
	metrics *SettlementMetrics
}

// NewEmitter creates an emitter writing to the given logger. A nil logger
// falls back to the process default.
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{logger: logger, metrics: Settlement()}
}

// Emit implements events.Emitter.
func (e *Emitter) Emit(evt events.Event) {
	if e == nil || evt == nil {
		return
	}
	provider, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	wire := provider.Event()
	if wire == nil {
		return
	}
	attrs := make([]any, 0, 2*len(wire.Attributes)+2)
	attrs = append(attrs, slog.String("event", wire.Type))
	for key, value := range wire.Attributes {
		attrs = append(attrs, slog.String(key, value))
	}
	e.logger.Info("engine event", attrs...)

	switch typed := evt.(type) {
	case events.SessionCreated:
		e.metrics.RecordSessionCreated()
	case events.Deposited:
		e.metrics.RecordDeposit(typed.Token, typed.Amount)
	case events.PaymentFinalized:
		e.metrics.RecordSettlement(typed.PreferredToken, typed.Gross, typed.Fee)
	case events.PaymentCancelled:
		e.metrics.RecordCancellation()
	case events.FeesWithdrawn:
		e.metrics.RecordFeeSweep(typed.Token)
	}
}
