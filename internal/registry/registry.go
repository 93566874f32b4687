package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TreasuredLabs/TreasuredLabs/internal/alert"
)

// ConfigError rejects invalid subscription options synchronously at
// subscribe time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid subscription config: %s %s", e.Field, e.Reason)
}

// Options carries the subscriber-supplied filter settings.
type Options struct {
	Kinds         []alert.Kind
	MinConfidence float64
	Priority      alert.Tier
	ExpiresAt     *time.Time
}

// Subscription ties one subscriber to one contract with filters.
type Subscription struct {
	ID            string
	SubscriberID  string
	ContractID    string
	Kinds         map[alert.Kind]struct{}
	MinConfidence float64
	Priority      alert.Tier
	CreatedAt     time.Time
	ExpiresAt     *time.Time
}

// Store persists subscriptions across restarts. Optional; nil keeps the
// registry memory-only.
type Store interface {
	SaveSubscription(ctx context.Context, sub Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
}

// Registry tracks which contracts each subscriber watches. Many-to-many:
// a subscriber may watch many contracts and a contract may have many
// watchers.
type Registry struct {
	store  Store
	logger zerolog.Logger

	mu   sync.RWMutex
	byID map[string]*Subscription
}

// New builds a registry, optionally backed by a store.
func New(store Store, logger zerolog.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger.With().Str("component", "registry").Logger(),
		byID:   make(map[string]*Subscription),
	}
}

// Load restores persisted subscriptions at startup.
func (r *Registry) Load(ctx context.Context) error {
	n, err := r.Reload(ctx)
	if err != nil {
		return err
	}
	r.logger.Info().Int("count", n).Msg("subscriptions loaded")
	return nil
}

// Reload replaces the in-memory set with the store's current contents, so
// subscriptions created or removed by another process take effect without a
// restart. The set is replaced, not merged: deletions propagate too.
func (r *Registry) Reload(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}

	subs, err := r.store.ListSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("load subscriptions: %w", err)
	}

	byID := make(map[string]*Subscription, len(subs))
	for i := range subs {
		sub := subs[i]
		byID[sub.ID] = &sub
	}

	r.mu.Lock()
	r.byID = byID
	r.mu.Unlock()

	return len(subs), nil
}

// Subscribe registers a subscriber for a contract. Invalid options are
// rejected synchronously with a ConfigError.
func (r *Registry) Subscribe(ctx context.Context, subscriberID, contractID string, opts Options) (string, error) {
	if err := validate(subscriberID, contractID, opts); err != nil {
		return "", err
	}

	kinds := make(map[alert.Kind]struct{}, len(opts.Kinds))
	if len(opts.Kinds) == 0 {
		for _, k := range alert.Kinds() {
			kinds[k] = struct{}{}
		}
	} else {
		for _, k := range opts.Kinds {
			kinds[k] = struct{}{}
		}
	}

	sub := Subscription{
		ID:            uuid.NewString(),
		SubscriberID:  subscriberID,
		ContractID:    contractID,
		Kinds:         kinds,
		MinConfidence: opts.MinConfidence,
		Priority:      opts.Priority,
		CreatedAt:     time.Now().UTC(),
		ExpiresAt:     opts.ExpiresAt,
	}

	if r.store != nil {
		if err := r.store.SaveSubscription(ctx, sub); err != nil {
			return "", fmt.Errorf("persist subscription: %w", err)
		}
	}

	r.mu.Lock()
	r.byID[sub.ID] = &sub
	r.mu.Unlock()

	r.logger.Info().
		Str("subscription", sub.ID).
		Str("subscriber", subscriberID).
		Str("contract", contractID).
		Msg("subscription created")

	return sub.ID, nil
}

// Unsubscribe removes a subscription by id.
func (r *Registry) Unsubscribe(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.byID[id]
	delete(r.byID, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("subscription %s not found", id)
	}

	if r.store != nil {
		if err := r.store.DeleteSubscription(ctx, id); err != nil {
			return fmt.Errorf("delete subscription: %w", err)
		}
	}

	r.logger.Info().Str("subscription", id).Msg("subscription removed")
	return nil
}

// Match returns every live subscription whose filters accept the alert.
func (r *Registry) Match(contractID string, kind alert.Kind, confidence float64) []alert.Match {
	now := time.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []alert.Match
	for _, sub := range r.byID {
		if sub.ContractID != contractID {
			continue
		}
		if sub.ExpiresAt != nil && sub.ExpiresAt.Before(now) {
			continue
		}
		if _, ok := sub.Kinds[kind]; !ok {
			continue
		}
		if confidence < sub.MinConfidence {
			continue
		}
		out = append(out, alert.Match{
			SubscriberID:   sub.SubscriberID,
			SubscriptionID: sub.ID,
			Priority:       sub.Priority,
		})
	}
	return out
}

// Contracts lists every contract with at least one live subscription.
func (r *Registry) Contracts() []string {
	now := time.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, sub := range r.byID {
		if sub.ExpiresAt != nil && sub.ExpiresAt.Before(now) {
			continue
		}
		if _, ok := seen[sub.ContractID]; ok {
			continue
		}
		seen[sub.ContractID] = struct{}{}
		out = append(out, sub.ContractID)
	}
	return out
}

// ExpireBefore drops subscriptions whose expiry passed before the cutoff.
func (r *Registry) ExpireBefore(ctx context.Context, cutoff time.Time) int {
	r.mu.Lock()
	var expired []string
	for id, sub := range r.byID {
		if sub.ExpiresAt != nil && sub.ExpiresAt.Before(cutoff) {
			expired = append(expired, id)
			delete(r.byID, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		if r.store != nil {
			if err := r.store.DeleteSubscription(ctx, id); err != nil {
				r.logger.Error().Err(err).Str("subscription", id).Msg("failed to delete expired subscription")
			}
		}
	}

	if len(expired) > 0 {
		r.logger.Info().Int("count", len(expired)).Msg("subscriptions expired")
	}
	return len(expired)
}

func validate(subscriberID, contractID string, opts Options) error {
	if subscriberID == "" {
		return &ConfigError{Field: "subscriberId", Reason: "must not be empty"}
	}
	if contractID == "" {
		return &ConfigError{Field: "contractId", Reason: "must not be empty"}
	}
	if opts.MinConfidence < 0 || opts.MinConfidence > 100 {
		return &ConfigError{Field: "minConfidence", Reason: "must be within [0,100]"}
	}
	if opts.Priority < alert.TierLow || opts.Priority > alert.TierHigh {
		return &ConfigError{Field: "priority", Reason: "unknown tier"}
	}
	for _, k := range opts.Kinds {
		if _, err := alert.ParseKind(string(k)); err != nil {
			return &ConfigError{Field: "alertKinds", Reason: fmt.Sprintf("unknown kind %q", k)}
		}
	}
	return nil
}

var _ alert.Matcher = (*Registry)(nil)
