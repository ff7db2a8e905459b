package broker

import (
	"simbroker/internal/metrics"
	"simbroker/internal/models"

	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventTypeOrder    EventType = "Order"
	EventTypeTrade    EventType = "Trade"
	EventTypePosition EventType = "Position"
	EventTypeAccount  EventType = "Account"
)

// Event is what the broker hands to the reporting/presentation side. Exactly
// one payload field is set, matching Type.
type Event struct {
	Type     EventType
	Order    *models.Order
	Trade    *models.Trade
	Position *models.Position
	Account  *models.Account
}

// publish never blocks the matching path: when the consumer falls behind and
// the buffer fills up, the event is dropped and counted.
func (b *Broker) publish(ev Event) {
	select {
	case b.events <- ev:
	default:
		b.dropped.Add(1)
		metrics.EventsDropped.Inc()
		b.log.WithFields(logrus.Fields{
			"component": "broker",
			"type":      ev.Type,
		}).Warn("Event queue full, event dropped.")
	}
}

func (b *Broker) publishOrder(o models.Order) {
	b.orders.save(o)
	b.publish(Event{Type: EventTypeOrder, Order: &o})
}

func (b *Broker) publishTrade(t models.Trade) {
	b.publish(Event{Type: EventTypeTrade, Trade: &t})
}

func (b *Broker) publishPosition(p models.Position) {
	b.positions.save(p)
	b.publish(Event{Type: EventTypePosition, Position: &p})
}

func (b *Broker) publishAccount(a models.Account) {
	b.publish(Event{Type: EventTypeAccount, Account: &a})
}
