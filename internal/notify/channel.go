// Package notify fans security alerts out to delivery channels (email,
// Slack, Teams, in-app). Channels register by name; the dispatcher picks the
// subset a tenant's configuration names.
package notify

import (
	"context"
	"time"
)

// Alert is one notification about a vendor security tracking record.
type Alert struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	TrackingID string    `json:"tracking_id"`
	VendorName string    `json:"vendor_name"`
	Severity   string    `json:"severity"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Recipients []string  `json:"recipients,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Channel delivers alerts over one transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, a *Alert) error
}

// Registry holds the available channels by name.
type Registry struct {
	channels map[string]Channel
	order    []string
}

// NewRegistry creates an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

// Register adds a channel. Re-registering a name replaces the previous
// channel.
func (r *Registry) Register(c Channel) {
	if _, exists := r.channels[c.Name()]; !exists {
		r.order = append(r.order, c.Name())
	}
	r.channels[c.Name()] = c
}

// Get returns the channel registered under name.
func (r *Registry) Get(name string) (Channel, bool) {
	c, ok := r.channels[name]
	return c, ok
}

// Names returns registered channel names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
