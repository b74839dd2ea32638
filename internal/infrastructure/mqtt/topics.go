package mqtt

import "fmt"

// Topic prefixes.
const (
	// TopicPrefixSwitches is the base of the inbound switch event feed.
	// Devices publish to switches/<device_name>.
	TopicPrefixSwitches = "switches"

	// TopicPrefixSystem is the base for hub status topics.
	TopicPrefixSystem = "switchhub/system"
)

// Topics provides builders for switchhub MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Switch("L15R7_B1") // "switches/L15R7_B1"
type Topics struct{}

// Switch returns the topic a single device publishes on.
//
// Example: switches/L15R7_B1
func (Topics) Switch(deviceName string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixSwitches, deviceName)
}

// AllSwitches returns the wildcard covering the whole switch feed.
//
// Example: switches/#
func (Topics) AllSwitches() string {
	return TopicPrefixSwitches + "/#"
}

// SystemStatus returns the retained hub online/offline topic.
//
// Example: switchhub/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
