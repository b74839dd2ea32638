package mqtt

import (
	"fmt"
)

// Subscribe registers a handler for messages on the specified topic.
//
// Topics can include MQTT wildcards:
//   - + (single-level): "switches/+" matches one device topic level
//   - # (multi-level): "switches/#" matches the whole switch feed
//
// The subscription is tracked whether or not the broker is reachable. When
// connected it is applied immediately and a broker refusal is returned;
// otherwise it is applied on the next (re)connect and Subscribe returns nil.
//
// Example:
//
//	err := client.Subscribe(mqtt.Topics{}.AllSwitches(), 1,
//	    func(topic string, payload []byte) error {
//	        return ingest(payload)
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	sub := subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}

	c.subMu.Lock()
	c.subscriptions[topic] = sub
	c.subMu.Unlock()

	if !c.IsConnected() {
		return nil
	}

	if err := c.subscribeNow(sub); err != nil {
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
		return err
	}

	c.setState(StateSubscribed)
	return nil
}

// subscribeNow sends one SUBSCRIBE and waits for the acknowledgment.
func (c *Client) subscribeNow(sub subscription) error {
	token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Unsubscribe stops tracking topic and, when connected, unsubscribes at the broker.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()

	if !c.IsConnected() {
		return nil
	}

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription is tracked for the exact topic string.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}
