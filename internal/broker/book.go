package broker

import (
	"sync"

	"simbroker/internal/models"
)

// positionBook keeps the latest published snapshot of every position so the
// query side never has to reach into worker-owned state.
type positionBook struct {
	mu        sync.RWMutex
	positions map[string]models.Position
}

func newPositionBook() *positionBook {
	return &positionBook{positions: make(map[string]models.Position)}
}

func (b *positionBook) save(p models.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[p.Symbol] = p
}

func (b *positionBook) get(symbol string) (models.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[symbol]
	return p, ok
}

func (b *positionBook) all() map[string]models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]models.Position, len(b.positions))
	for k, v := range b.positions {
		out[k] = v
	}
	return out
}

// orderBook mirrors the latest published state of every order for queries.
// Finished orders stay visible with their terminal status and reason.
type orderBook struct {
	mu     sync.RWMutex
	orders map[string]models.Order
}

func newOrderBook() *orderBook {
	return &orderBook{orders: make(map[string]models.Order)}
}

func (b *orderBook) save(o models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[o.ID] = o
}

func (b *orderBook) get(orderID string) (models.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[orderID]
	return o, ok
}

func (b *orderBook) alive() []models.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []models.Order
	for _, o := range b.orders {
		if o.Status == models.OrderStatusAlive {
			out = append(out, o)
		}
	}
	return out
}
