package poll

import (
	"context"
	"time"

	"github.com/chainwatch/go-whale-monitor/business/domain/alert"
	"github.com/chainwatch/go-whale-monitor/business/domain/monitor"
	"github.com/chainwatch/go-whale-monitor/entities"
	"github.com/chainwatch/go-whale-monitor/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dispatcher delivers a batch of alerts to their destinations.
type Dispatcher interface {
	Dispatch(ctx context.Context, alerts []alert.Alert)
}

// SubscriberSource returns the currently enabled subscribers.
type SubscriberSource interface {
	EnabledSubscribers() []entities.Subscriber
}

// Publisher mirrors qualifying transactions to an out-of-band event stream.
type Publisher interface {
	PublishAlerts(ctx context.Context, txs []entities.Transaction) error
}

// Poller drives the monitoring loop: one concurrent fan-out fetch across all
// monitors per interval, per-monitor failure isolation, subscriber fan-out
// and paced dispatch.
type Poller struct {
	monitors      []monitor.Monitor
	dispatcher    Dispatcher
	subscribers   SubscriberSource
	publisher     Publisher // optional
	interval      time.Duration
	fetchTimeout  time.Duration
	admitUnpriced bool
	metrics       *metrics.ProcessingMetrics
	logger        *zap.SugaredLogger
}

func NewPoller(
	monitors []monitor.Monitor,
	dispatcher Dispatcher,
	subscribers SubscriberSource,
	publisher Publisher,
	interval time.Duration,
	fetchTimeout time.Duration,
	admitUnpriced bool,
	processingMetrics *metrics.ProcessingMetrics,
	logger *zap.SugaredLogger,
) *Poller {
	return &Poller{
		monitors:      monitors,
		dispatcher:    dispatcher,
		subscribers:   subscribers,
		publisher:     publisher,
		interval:      interval,
		fetchTimeout:  fetchTimeout,
		admitUnpriced: admitUnpriced,
		metrics:       processingMetrics,
		logger:        logger,
	}
}

// Start runs cycles until the context is cancelled. The first cycle runs
// immediately so startup does not wait a full interval.
func (p *Poller) Start(ctx context.Context) error {
	p.RunCycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.RunCycle(ctx)
		}
	}
}

// RunCycle performs one fetch/filter/dispatch pass. Per-monitor errors are
// counted and logged; they never abort the cycle.
func (p *Poller) RunCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	results := make([][]entities.Transaction, len(p.monitors))
	fetchErrors := make([]error, len(p.monitors))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range p.monitors {
		i, m := i, m
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, p.fetchTimeout)
			defer cancel()

			txs, err := m.FetchAndFilter(fetchCtx)
			if err != nil {
				fetchErrors[i] = err
				return nil // one slow or broken source must not cancel its siblings
			}
			results[i] = txs
			return nil
		})
	}
	_ = g.Wait()

	var aggregate []entities.Transaction
	for i, m := range p.monitors {
		if fetchErrors[i] != nil {
			p.metrics.IncFetchErrors(m.NetworkName())
			p.logger.Errorw("monitor fetch failed", "network", m.NetworkName(), "error", fetchErrors[i])
			continue
		}
		if len(results[i]) > 0 {
			p.metrics.AddNewTransactions(m.NetworkName(), len(results[i]))
		}
		aggregate = append(aggregate, results[i]...)
	}

	if len(aggregate) > 0 {
		alerts := p.fanOut(aggregate)
		p.dispatcher.Dispatch(ctx, alerts)

		if p.publisher != nil {
			if err := p.publisher.PublishAlerts(ctx, aggregate); err != nil {
				p.logger.Errorw("publishing alert events failed", "error", err)
			}
		}
	}

	p.metrics.IncCycles()
}

// fanOut expands the already-deduped aggregate across all enabled
// subscribers, applying each subscriber's own threshold. Per-network order
// is preserved within each subscriber's share of the batch.
func (p *Poller) fanOut(txs []entities.Transaction) []alert.Alert {
	subscribers := p.subscribers.EnabledSubscribers()

	alerts := make([]alert.Alert, 0, len(txs)*len(subscribers))
	for _, sub := range subscribers {
		for _, tx := range txs {
			if threshold, ok := sub.Thresholds[tx.Network]; ok && !threshold.Passes(tx, p.admitUnpriced) {
				continue
			}
			alerts = append(alerts, alert.Alert{Destination: sub.ChatID, Tx: tx})
		}
	}
	return alerts
}
