package alert

import (
	"context"
	"time"

	"github.com/chainwatch/go-whale-monitor/entities"
	"github.com/chainwatch/go-whale-monitor/metrics"
	"go.uber.org/zap"
)

// Sink delivers one formatted message to a destination chat.
type Sink interface {
	SendMessage(ctx context.Context, destination string, text string) error
}

// Alert pairs a qualifying transaction with one destination.
type Alert struct {
	Destination string
	Tx          entities.Transaction
}

// Dispatcher serializes alert delivery. Sends never run concurrently and a
// fixed pause separates consecutive sends to stay under the sink's rate
// limit. A failed send is logged and the remainder of the batch continues.
type Dispatcher struct {
	sink      Sink
	formatter *Formatter
	pause     time.Duration
	metrics   *metrics.ProcessingMetrics
	logger    *zap.SugaredLogger
}

func NewDispatcher(sink Sink, formatter *Formatter, pause time.Duration, processingMetrics *metrics.ProcessingMetrics, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		sink:      sink,
		formatter: formatter,
		pause:     pause,
		metrics:   processingMetrics,
		logger:    logger,
	}
}

// Dispatch sends the batch strictly sequentially. It returns early only when
// the context is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []Alert) {
	for i, a := range alerts {
		if ctx.Err() != nil {
			return
		}

		text := d.formatter.TransactionAlert(a.Tx)
		if err := d.sink.SendMessage(ctx, a.Destination, text); err != nil {
			d.metrics.IncDispatchErrors()
			d.logger.Errorw("sending alert failed",
				"network", a.Tx.Network, "txHash", a.Tx.TxHash, "destination", a.Destination, "error", err)
		} else {
			d.metrics.IncAlertsSent()
			d.logger.Infow("sent alert", "network", a.Tx.Network, "txHash", a.Tx.TxHash, "destination", a.Destination)
		}

		if i < len(alerts)-1 {
			if !sleepContext(ctx, d.pause) {
				return
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
