package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chainwatch/go-whale-monitor/business/domain/alert"
	"github.com/chainwatch/go-whale-monitor/business/domain/monitor"
	"github.com/chainwatch/go-whale-monitor/business/domain/poll"
	"go.uber.org/zap"
)

// Reporter periodically sends a per-network summary of recent activity,
// independent of thresholds. It runs on its own coarser timer and a failing
// network degrades to a "no recent transactions" section instead of
// aborting the report.
type Reporter struct {
	monitors    []monitor.Monitor
	sink        alert.Sink
	formatter   *alert.Formatter
	subscribers poll.SubscriberSource
	interval    time.Duration
	limit       int
	logger      *zap.SugaredLogger
}

func NewReporter(
	monitors []monitor.Monitor,
	sink alert.Sink,
	formatter *alert.Formatter,
	subscribers poll.SubscriberSource,
	interval time.Duration,
	limit int,
	logger *zap.SugaredLogger,
) *Reporter {
	return &Reporter{
		monitors:    monitors,
		sink:        sink,
		formatter:   formatter,
		subscribers: subscribers,
		interval:    interval,
		limit:       limit,
		logger:      logger,
	}
}

// Start sends one report per interval until the context is cancelled.
func (r *Reporter) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Report(ctx)
		}
	}
}

// Report assembles and delivers one consolidated summary to every enabled
// subscriber.
func (r *Reporter) Report(ctx context.Context) {
	text := r.BuildReport(ctx)

	for _, sub := range r.subscribers.EnabledSubscribers() {
		if ctx.Err() != nil {
			return
		}
		if err := r.sink.SendMessage(ctx, sub.ChatID, text); err != nil {
			r.logger.Errorw("sending dashboard failed", "destination", sub.ChatID, "error", err)
		}
	}
}

func (r *Reporter) BuildReport(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("📊 <b>Transaction Dashboard</b>\n\n")

	for _, m := range r.monitors {
		network := m.NetworkName()
		fmt.Fprintf(&b, "<b>%s</b>\n", network)

		txs := m.FetchRecentAnyAmount(ctx, r.limit)
		if len(txs) == 0 {
			b.WriteString("  No recent transactions\n\n")
			continue
		}

		symbol := r.formatter.TokenSymbol(network)
		for _, tx := range txs {
			amount := fmt.Sprintf("%s %s", alert.FormatAmount(tx.AmountNative, 4), symbol)
			if link := r.formatter.TxURL(network, tx.TxHash); link != "" {
				fmt.Fprintf(&b, "  • <a href=\"%s\">%s</a>\n", link, amount)
			} else {
				fmt.Fprintf(&b, "  • %s\n", amount)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "🕒 Updated: %s", time.Now().UTC().Format("15:04:05"))
	return b.String()
}
