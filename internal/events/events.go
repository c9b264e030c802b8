// Package events carries stock change notifications from the inventory core
// to whatever wants to react (low-stock alerting, reporting). Delivery is
// fire-and-forget after the owning transaction commits; subscribers must not
// be relied on for correctness.
package events

import "sync"

// StockEvent describes one committed stock mutation.
type StockEvent struct {
	Type           string `json:"type"` // stock change type: restock, sale, adjustment, expiry
	ProductID      int64  `json:"product_id"`
	ChangeAmount   int    `json:"change_amount"`
	NewQuantity    int    `json:"new_quantity"`
	AlertTriggered bool   `json:"alert_triggered"`
}

// Bus is an in-process publish/subscribe hub for stock events.
type Bus struct {
	mu   sync.RWMutex
	subs []func(StockEvent)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all future stock events. Handlers run
// synchronously on the publishing goroutine and should be quick.
func (b *Bus) Subscribe(fn func(StockEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish delivers an event to all subscribers. A nil bus drops events, so
// callers that don't care about notifications can pass nil.
func (b *Bus) Publish(e StockEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}
