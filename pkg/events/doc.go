/*
Package events provides the change broker that carries notifications
between Ballast's components.

The broker decouples producers (store saves, integrity repairs, backup and
sync outcomes, out-of-band write detection) from consumers: delivery is
fan-out over buffered per-subscriber channels, and a slow subscriber drops
events rather than blocking the publisher. Events are observability
signals, not a durable log; the audit ledger is the durable record.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			// react to ev.Type / ev.Resource
		}
	}()

	broker.Publish(events.New(events.EventResourceSaved, resource.KeyEvents, "roster updated"))
*/
package events
