package actor

import (
	"testing"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverySensors(t *testing.T) {
	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	obisDefs, unknown := domain.FindObisDefinitions(cfg.Speedwire.ObisMeasurements)
	require.Empty(t, unknown)
	registerDefs, unknown := domain.FindRegisterDefinitions(cfg.Speedwire.InverterMeasurements)
	require.Empty(t, unknown)

	meter := domain.Device{SusyID: 349, SerialNumber: 1901431377, DeviceClass: domain.DEVICE_CLASS_EMETER}
	sensors := DiscoverySensors(cfg.MQTT.BaseTopic, []domain.Device{meter, testInverter}, obisDefs, registerDefs)

	// bridge state, three meter sensors, three inverter sensors
	require.Len(t, sensors, 7)
	assert.Equal(domain.SENSOR_ID_BRIDGE_STATE, sensors[0].Id)

	assert.Equal("1901431377_positive_active_power", sensors[1].Id)
	assert.Equal("sma_349_1901431377", sensors[1].Device.Id)
	assert.Equal("SMA", sensors[1].Device.Manufacturer)
	assert.Equal(sensors[0].Device.Id, sensors[1].Device.ViaDevice)
	assert.Equal("sma_349_1901431377", sensors[2].Device.Id)
	assert.Empty(sensors[2].Device.Manufacturer)

	assert.Equal("3010538116_dc_power_mpp1", sensors[4].Id)
	assert.Equal("W", sensors[4].UnitOfMeasurement)
	assert.Equal("3010538116_operation_status", sensors[6].Id)
	assert.Equal(domain.ENTITY_CLASS_DIAGNOSTIC, sensors[6].EntityCategory)
}

func TestDiscoverySensorsBridgeOnly(t *testing.T) {
	sensors := DiscoverySensors("speedwire", nil, nil, nil)
	assert.Len(t, sensors, 1)
}
