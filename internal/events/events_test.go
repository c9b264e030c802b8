package events

import "testing"

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	var first, second []StockEvent
	bus.Subscribe(func(e StockEvent) { first = append(first, e) })
	bus.Subscribe(func(e StockEvent) { second = append(second, e) })

	bus.Publish(StockEvent{Type: "sale", ProductID: 7, ChangeAmount: -2, NewQuantity: 8})

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected both subscribers to receive the event, got %d/%d", len(first), len(second))
	}
	if first[0].ProductID != 7 || first[0].NewQuantity != 8 {
		t.Errorf("unexpected event: %+v", first[0])
	}
}

func TestNilBusDropsEvents(t *testing.T) {
	var bus *Bus
	// Must not panic.
	bus.Publish(StockEvent{Type: "restock"})
}
