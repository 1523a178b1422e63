package mqtt

import (
	"fmt"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	Origin            HADiscoveryOrigin `json:"origin"`
	StateTopic        string            `json:"state_topic"`
	AvTopic           string            `json:"availability_topic"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	Precision         *uint             `json:"suggested_display_precision,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
	Icon              string            `json:"icon,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// HADiscoveryOrigin names the bridge that published a discovery config.
type HADiscoveryOrigin struct {
	Name    string `json:"name"`
	Version string `json:"sw_version,omitempty"`
}

func (c *MQTTClient) HADiscoverySensorTopic(sensor domain.GenericSensor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", c.discoveryTopic(), sensor.SensorType, sensor.Device.Id, sensor.Id)
}

// GenericSensorToHADiscoveryMessage builds the discovery config of a sensor.
// The bridge connection sensor reads the retained bridge state, every other sensor its own state topic.
func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	disConfig := HADiscoveryConfig{
		Device:            device(sensor.Device),
		Origin:            HADiscoveryOrigin{Name: "speedwire2mqtt", Version: versioninfo.Short()},
		StateTopic:        client.SensorStateTopic(sensor.Id),
		AvTopic:           client.BridgeStateTopic(),
		StateClass:        sensor.StateClass,
		DeviceClass:       sensor.DeviceClass,
		UnitOfMeasurement: sensor.UnitOfMeasurement,
		Precision:         sensor.Precision,
		EntityCategory:    sensor.EntityCategory,
		Name:              sensor.Name,
		UniqueId:          sensor.UniqueId,
		Icon:              sensor.Icon,
		EnabledByDefault:  sensor.EnabledByDefault,
		Platform:          "mqtt",
	}
	if sensor.Id == domain.SENSOR_ID_BRIDGE_STATE {
		disConfig.StateTopic = client.BridgeStateTopic()
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
	}
	return disConfig
}

func device(d domain.ComponentDevice) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
