// Package notify provides bounded fan-out of events to independent
// subscribers.
//
// A Hub owns a set of subscriptions. Publishing enqueues an envelope onto
// every subscription's bounded queue and returns immediately; it never
// blocks on a slow consumer. When a queue is full the oldest undelivered
// envelope is dropped and the subscription is marked lagging, so the
// consumer can detect the gap and resynchronize from authoritative state.
//
//	        Publish(payload)
//	              │
//	        ┌─────┴─────┐
//	        │    Hub    │   assigns ID, sequence, timestamp
//	        └─────┬─────┘
//	   ┌──────────┼──────────┐
//	   ▼          ▼          ▼
//	 [queue]    [queue]    [queue]     bounded, drop-oldest
//	   │          │          │
//	 Next()     Next()     Next()      pull side, context-aware
//
// Subscriptions observe envelopes in publish order. Closed subscriptions
// are pruned lazily on the next publish; the hub never polls consumers.
package notify
