package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TreasuredLabs/TreasuredLabs/internal/alert"
	"github.com/TreasuredLabs/TreasuredLabs/internal/registry"
)

// Subscribe registers a persistent subscription and prints its id.
func (a *App) Subscribe(ctx context.Context, opts SubscribeOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot manage subscriptions")
	}
	defer closeStore()

	kinds := make([]alert.Kind, 0, len(opts.Kinds))
	for _, raw := range opts.Kinds {
		kind, err := alert.ParseKind(raw)
		if err != nil {
			return err
		}
		kinds = append(kinds, kind)
	}

	priority := alert.TierNormal
	if opts.Priority != "" {
		priority, err = alert.ParseTier(opts.Priority)
		if err != nil {
			return err
		}
	}

	var expires *time.Time
	if opts.TTL > 0 {
		t := time.Now().UTC().Add(opts.TTL)
		expires = &t
	}

	reg := registry.New(store, a.Logger)
	if err := reg.Load(ctx); err != nil {
		return err
	}

	id, err := reg.Subscribe(ctx, opts.SubscriberID, opts.ContractID, registry.Options{
		Kinds:         kinds,
		MinConfidence: opts.MinConfidence,
		Priority:      priority,
		ExpiresAt:     expires,
	})
	if err != nil {
		return err
	}

	fmt.Println(id)
	return nil
}

// Unsubscribe removes a subscription by id.
func (a *App) Unsubscribe(ctx context.Context, id string) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot manage subscriptions")
	}
	defer closeStore()

	reg := registry.New(store, a.Logger)
	if err := reg.Load(ctx); err != nil {
		return err
	}
	return reg.Unsubscribe(ctx, id)
}
