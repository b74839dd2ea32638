// Package hub fans validated switch events out to live WebSocket viewers.
//
// # Architecture
//
//	ingest ──Ingest──▶ Hub ──┬─▶ writer goroutine ──▶ store (write-through)
//	                         ├─▶ telemetry sinks
//	                         └─▶ Broadcast ──▶ Subscriber queues ──▶ write pumps
//
// A Subscriber joins through the Manager's listener. On join the hub loads
// the latest status of every device and queues it to that subscriber alone;
// live events arriving meanwhile are held and flushed after the snapshot, so
// a late viewer always converges to current state. The snapshot read is
// bounded by Config.SnapshotTimeout; a hold that outgrows the send buffer
// drops its oldest messages instead of removing the subscriber.
//
// # Failure isolation
//
// A store outage degrades to "no snapshot" and failed writes are logged. A
// subscriber that cannot keep up is removed without affecting the others.
// Manager runs a ping sweep and a liveness sweep; both are independent of
// the broadcast path.
//
// Metrics are exposed through Metrics and registered with Prometheus.
package hub
