package subscriber

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chainwatch/go-whale-monitor/entities"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store persists subscriber records across restarts.
type Store interface {
	SetSubscriber(subscriber entities.Subscriber) error
	GetAllSubscribers() ([]entities.Subscriber, error)
}

// Registry is the single synchronized owner of all subscriber state. The
// poll loop reads enabled subscribers and effective thresholds; the command
// path mutates them. Every mutation goes through the registry's lock and is
// written through to the store.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[string]entities.Subscriber
	defaults    map[string]entities.Threshold
	store       Store
	logger      *zap.SugaredLogger
}

// NewRegistry loads previously persisted subscribers. The defaults map gives
// each network its configured threshold and mode; a new subscriber starts
// with a copy of it.
func NewRegistry(store Store, defaults map[string]entities.Threshold, logger *zap.SugaredLogger) (*Registry, error) {
	persisted, err := store.GetAllSubscribers()
	if err != nil {
		return nil, fmt.Errorf("loading subscribers: %v", err)
	}

	subscribers := make(map[string]entities.Subscriber, len(persisted))
	for _, sub := range persisted {
		subscribers[sub.ChatID] = sub
	}

	return &Registry{
		subscribers: subscribers,
		defaults:    defaults,
		store:       store,
		logger:      logger,
	}, nil
}

// Enable turns monitoring on for the chat, creating the subscriber on first
// contact.
func (r *Registry) Enable(chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscribers[chatID]
	if !ok {
		sub = entities.Subscriber{
			ChatID:     chatID,
			Thresholds: copyThresholds(r.defaults),
		}
		r.logger.Infow("registering new subscriber", "chatID", chatID)
	}
	sub.Enabled = true

	return r.commit(sub)
}

// Disable turns monitoring off for the chat. The subscriber record is kept.
func (r *Registry) Disable(chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subscribers[chatID]
	if !ok {
		sub = entities.Subscriber{
			ChatID:     chatID,
			Thresholds: copyThresholds(r.defaults),
		}
	}
	sub.Enabled = false

	return r.commit(sub)
}

// SetThreshold updates the chat's threshold amount for a network. The
// comparison mode stays the network's configured mode.
func (r *Registry) SetThreshold(chatID, network string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.defaults[network]
	if !ok {
		return fmt.Errorf("unknown network %q", network)
	}

	sub, ok := r.subscribers[chatID]
	if !ok {
		sub = entities.Subscriber{
			ChatID:     chatID,
			Thresholds: copyThresholds(r.defaults),
		}
	}
	if sub.Thresholds == nil {
		sub.Thresholds = copyThresholds(r.defaults)
	}
	sub.Thresholds[network] = entities.Threshold{Mode: def.Mode, Amount: amount}

	return r.commit(sub)
}

// Subscriber returns a copy of the chat's record.
func (r *Registry) Subscriber(chatID string) (entities.Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subscribers[chatID]
	if !ok {
		return entities.Subscriber{}, false
	}
	sub.Thresholds = r.effectiveThresholds(sub)
	return sub, true
}

// EnabledSubscribers returns copies of all currently enabled subscribers.
// Subscribers persisted before a network was configured get that network's
// default threshold backfilled.
func (r *Registry) EnabledSubscribers() []entities.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var enabled []entities.Subscriber
	for _, sub := range r.subscribers {
		if !sub.Enabled {
			continue
		}
		sub.Thresholds = r.effectiveThresholds(sub)
		enabled = append(enabled, sub)
	}
	return enabled
}

// Threshold returns the effective pre-filter threshold for a network: the
// lowest amount any enabled subscriber wants, so the monitors never discard
// a transaction some subscriber is still interested in. With no enabled
// subscribers the network default applies.
func (r *Registry) Threshold(network string) entities.Threshold {
	r.mu.RLock()
	defer r.mu.RUnlock()

	floor := r.defaults[network]
	for _, sub := range r.subscribers {
		if !sub.Enabled {
			continue
		}
		th, ok := sub.Thresholds[network]
		if !ok {
			continue
		}
		if th.Amount.LessThan(floor.Amount) {
			floor.Amount = th.Amount
		}
	}
	return floor
}

// Networks returns the names of all configured networks.
func (r *Registry) Networks() []string {
	names := make([]string, 0, len(r.defaults))
	for name := range r.defaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) commit(sub entities.Subscriber) error {
	if err := r.store.SetSubscriber(sub); err != nil {
		return fmt.Errorf("persisting subscriber %s: %v", sub.ChatID, err)
	}
	r.subscribers[sub.ChatID] = sub
	return nil
}

// effectiveThresholds copies the subscriber's thresholds and fills networks
// the record predates with their configured defaults. Callers hold the lock.
func (r *Registry) effectiveThresholds(sub entities.Subscriber) map[string]entities.Threshold {
	thresholds := copyThresholds(sub.Thresholds)
	for network, def := range r.defaults {
		if _, ok := thresholds[network]; !ok {
			thresholds[network] = def
		}
	}
	return thresholds
}

func copyThresholds(src map[string]entities.Threshold) map[string]entities.Threshold {
	dst := make(map[string]entities.Threshold, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
