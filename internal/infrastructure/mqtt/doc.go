// Package mqtt provides the broker link that feeds switch events into the hub.
//
// This package manages:
//   - A non-blocking connection to the broker that retries forever on a
//     fixed interval
//   - Subscriptions that are tracked while disconnected and restored on
//     every reconnect
//   - Last Will and Testament on switchhub/system/status
//   - Panic recovery around message handlers
//
// # Architecture
//
//	wall switches ──▶ MQTT broker ──switches/#──▶ mqtt.Client ──▶ ingest
//
// # Connection states
//
// State reports Disconnected, Connecting, Connected or Subscribed. A lost
// connection moves back to Connecting; it is never fatal to the process.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err // configuration problem only
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllSwitches(), 1,
//	    func(topic string, payload []byte) error {
//	        return svc.Handle(topic, payload)
//	    })
package mqtt
