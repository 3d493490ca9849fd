/*
Package events provides an in-memory event broker for Vigil's pub/sub
messaging.

The events package implements a lightweight event bus broadcasting engine
transitions — incident lifecycle changes, monitor and task status changes,
notification dispatches — to interested subscribers. Delivery is
asynchronous and best-effort: publishing never blocks the transaction that
produced the transition, and a slow subscriber drops events rather than
backpressuring the engine.

# Event Flow

	Publisher → Event Channel (buffer: 100)
	     ↓
	Broadcast Loop
	     ↓
	Subscriber Channels (buffer: 50 each)

The durable record of every transition is the incident timeline in the
database; this broker only mirrors transitions in-process for operational
logging and tests. Nothing may depend on broker delivery for correctness.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for event := range sub {
			logger.Debug().
				Str("type", string(event.Type)).
				Msg(event.Message)
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventIncidentCreated,
		Message: "incident created for monitor",
	})
*/
package events
