// Package inapp persists tracking alerts as in-app notifications through the
// store, so alert fan-out always has a channel that needs no external
// configuration.
package inapp

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/vendorwatch/internal/notify"
)

// Store persists in-app notifications.
type Store interface {
	SaveNotification(ctx context.Context, a *notify.Alert) error
}

// Channel writes alerts to the notification store.
type Channel struct {
	store Store
}

// New creates an in-app channel backed by the given store.
func New(store Store) *Channel {
	return &Channel{store: store}
}

// Name implements notify.Channel.
func (c *Channel) Name() string { return "in_app" }

// Send persists the alert.
func (c *Channel) Send(ctx context.Context, a *notify.Alert) error {
	if err := c.store.SaveNotification(ctx, a); err != nil {
		return fmt.Errorf("inapp: save notification: %w", err)
	}
	return nil
}
