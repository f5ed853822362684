package identity

import "fmt"

// TopicFormat is the Azure IoT Hub device-to-cloud topic.
const TopicFormat = "devices/%s/messages/events/"

// DeviceIdentity is the identity a simulated device connects and publishes as.
// Values are assigned once from the asset pool and never modified.
type DeviceIdentity struct {
	Tag             string `json:"nametag" yaml:"nametag"`
	GatewayID       string `json:"gatewayId" yaml:"gatewayId"`
	PayloadTemplate string `json:"payload" yaml:"payload"`
	OrgID           string `json:"orgId,omitempty" yaml:"orgId,omitempty"`
}

// IsZero reports whether the identity was never assigned.
func (d DeviceIdentity) IsZero() bool {
	return d.Tag == ""
}

// Topic returns the telemetry topic for the device.
func (d DeviceIdentity) Topic() string {
	return fmt.Sprintf(TopicFormat, d.Tag)
}
