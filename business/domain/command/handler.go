package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chainwatch/go-whale-monitor/business/domain/alert"
	"github.com/chainwatch/go-whale-monitor/entities"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Update is one incoming chat message, identified by a monotonically
// increasing update id used as the long-poll offset.
type Update struct {
	ID     int64
	ChatID string
	Text   string
}

// Source delivers chat updates with an id of at least offset.
type Source interface {
	PollUpdates(ctx context.Context, offset int64) ([]Update, error)
}

// Registry mutates and reads subscriber state on behalf of chat commands.
type Registry interface {
	Enable(chatID string) error
	Disable(chatID string) error
	SetThreshold(chatID, network string, amount decimal.Decimal) error
	Subscriber(chatID string) (entities.Subscriber, bool)
	Networks() []string
}

// DashboardSource renders the consolidated recent-transactions report on
// demand. Optional.
type DashboardSource interface {
	BuildReport(ctx context.Context) string
}

const helpText = `<b>Commands</b>
/start - enable alerts for this chat
/stop - disable alerts for this chat
/threshold &lt;network&gt; &lt;amount&gt; - set your alert threshold
/status - show your settings
/dashboard - recent transactions per network`

// Handler long-polls chat updates and applies the commands they carry to the
// subscriber registry, replying through the alert sink.
type Handler struct {
	source    Source
	registry  Registry
	sink      alert.Sink
	dashboard DashboardSource
	pollRetry time.Duration
	offset    int64
	logger    *zap.SugaredLogger
}

func NewHandler(source Source, registry Registry, sink alert.Sink, dashboard DashboardSource, pollRetry time.Duration, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		source:    source,
		registry:  registry,
		sink:      sink,
		dashboard: dashboard,
		pollRetry: pollRetry,
		logger:    logger,
	}
}

// Start polls for updates until the context is cancelled. Poll failures are
// logged and retried after a pause.
func (h *Handler) Start(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := h.source.PollUpdates(ctx, h.offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.logger.Errorw("polling chat updates failed", "error", err)
			if err := sleepContext(ctx, h.pollRetry); err != nil {
				return err
			}
			continue
		}

		for _, update := range updates {
			if update.ID >= h.offset {
				h.offset = update.ID + 1
			}
			h.Handle(ctx, update)
		}
	}
}

// Handle executes a single update. Unknown or malformed commands get a usage
// reply; non-command messages are ignored.
func (h *Handler) Handle(ctx context.Context, update Update) {
	fields := strings.Fields(update.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return
	}

	// telegram suffixes commands with the bot name in group chats
	cmd := strings.ToLower(fields[0])
	if at := strings.Index(cmd, "@"); at != -1 {
		cmd = cmd[:at]
	}

	var reply string
	switch cmd {
	case "/start":
		reply = h.enable(update.ChatID)
	case "/stop":
		reply = h.disable(update.ChatID)
	case "/threshold":
		reply = h.setThreshold(update.ChatID, fields[1:])
	case "/status":
		reply = h.status(update.ChatID)
	case "/dashboard":
		if h.dashboard == nil {
			reply = "Dashboard is not available."
		} else {
			reply = h.dashboard.BuildReport(ctx)
		}
	case "/help":
		reply = helpText
	default:
		reply = "Unknown command.\n\n" + helpText
	}

	if err := h.sink.SendMessage(ctx, update.ChatID, reply); err != nil {
		h.logger.Errorw("sending command reply failed", "chat_id", update.ChatID, "command", cmd, "error", err)
	}
}

func (h *Handler) enable(chatID string) string {
	if err := h.registry.Enable(chatID); err != nil {
		h.logger.Errorw("enabling subscriber failed", "chat_id", chatID, "error", err)
		return "Could not enable alerts, please try again."
	}
	return "✅ Whale alerts enabled. Use /threshold to tune per-network limits."
}

func (h *Handler) disable(chatID string) string {
	if err := h.registry.Disable(chatID); err != nil {
		h.logger.Errorw("disabling subscriber failed", "chat_id", chatID, "error", err)
		return "Could not disable alerts, please try again."
	}
	return "🛑 Whale alerts disabled. Use /start to re-enable."
}

func (h *Handler) setThreshold(chatID string, args []string) string {
	if len(args) != 2 {
		return "Usage: /threshold &lt;network&gt; &lt;amount&gt;"
	}

	amount, err := decimal.NewFromString(args[1])
	if err != nil || amount.IsNegative() {
		return fmt.Sprintf("%q is not a valid amount.", args[1])
	}

	network := matchNetwork(h.registry.Networks(), args[0])
	if network == "" {
		return fmt.Sprintf("Unknown network %q. Monitored networks: %s.", args[0], strings.Join(h.registry.Networks(), ", "))
	}

	if err := h.registry.SetThreshold(chatID, network, amount); err != nil {
		h.logger.Errorw("setting threshold failed", "chat_id", chatID, "network", network, "error", err)
		return "Could not update the threshold, please try again."
	}
	return fmt.Sprintf("Threshold for %s set to %s.", network, amount.String())
}

func (h *Handler) status(chatID string) string {
	sub, ok := h.registry.Subscriber(chatID)
	if !ok {
		return "No settings yet. Use /start to enable alerts."
	}

	var b strings.Builder
	if sub.Enabled {
		b.WriteString("✅ Alerts enabled\n")
	} else {
		b.WriteString("🛑 Alerts disabled\n")
	}

	networks := make([]string, 0, len(sub.Thresholds))
	for network := range sub.Thresholds {
		networks = append(networks, network)
	}
	sort.Strings(networks)
	for _, network := range networks {
		threshold := sub.Thresholds[network]
		unit := "tokens"
		if threshold.Mode == entities.ThresholdUsd {
			unit = "USD"
		}
		b.WriteString(fmt.Sprintf("• %s: %s %s\n", network, threshold.Amount.String(), unit))
	}
	return b.String()
}

// matchNetwork resolves a user-typed network name case-insensitively against
// the configured networks.
func matchNetwork(networks []string, name string) string {
	for _, network := range networks {
		if strings.EqualFold(network, name) {
			return network
		}
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
