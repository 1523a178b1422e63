package service

import (
	"testing"
	"time"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"

	"github.com/stretchr/testify/assert"
)

func TestQueriesFor(t *testing.T) {
	assert := assert.New(t)

	assert.Len(QueriesFor(domain.DEVICE_CLASS_PV_INVERTER), 5)
	assert.Equal(QueriesFor(domain.DEVICE_CLASS_PV_INVERTER), QueriesFor(domain.DEVICE_CLASS_INVERTER))
	assert.Empty(QueriesFor(domain.DEVICE_CLASS_EMETER))

	battery := QueriesFor(domain.DEVICE_CLASS_BATTERY_INVERTER)
	assert.Contains(battery, Query{speedwire.STATUS_QUERY | speedwire.COMPONENT_2, 0x00412a00, 0x00498aff})
}

func TestQueryPlannerNightMode(t *testing.T) {
	assert := assert.New(t)

	p := &QueryPlanner{
		Interval:            5 * time.Second,
		ReceiveTimeout:      2 * time.Second,
		NightInterval:       60 * time.Second,
		NightReceiveTimeout: 10 * time.Second,
	}

	entry := func(value float64, timer uint32) *domain.MeasurementEntry {
		e := domain.NewMeasurementEntry(powerType, domain.LINE_MPP1)
		e.Value.SetValue(value, timer)
		return e
	}

	assert.False(p.UpdateNightMode(nil), "no inverters reported")
	assert.False(p.UpdateNightMode([]*domain.MeasurementEntry{domain.NewMeasurementEntry(powerType, domain.LINE_MPP1)}), "never measured")
	assert.False(p.UpdateNightMode([]*domain.MeasurementEntry{entry(0, 100), entry(12, 100)}))
	assert.Equal(5*time.Second, p.QueryInterval())
	assert.Equal(2*time.Second, p.QueryReceiveTimeout())

	assert.True(p.UpdateNightMode([]*domain.MeasurementEntry{entry(0, 100), entry(0, 101)}))
	assert.True(p.NightMode())
	assert.Equal(60*time.Second, p.QueryInterval())
	assert.Equal(10*time.Second, p.QueryReceiveTimeout())

	assert.False(p.UpdateNightMode([]*domain.MeasurementEntry{entry(1, 200)}))
	assert.Equal(5*time.Second, p.QueryInterval())
}

func TestQueriedDefinitions(t *testing.T) {
	assert := assert.New(t)

	defs, unknown := domain.FindRegisterDefinitions([]string{"dc_power_mpp1", "ac_power_l1", "battery_soc", "operation_status"})
	assert.Empty(unknown)

	names := func(defs []domain.RegisterDefinition) []string {
		var n []string
		for _, d := range defs {
			n = append(n, d.Name)
		}
		return n
	}
	assert.Equal([]string{"dc_power_mpp1", "ac_power_l1", "operation_status"}, names(QueriedDefinitions(domain.DEVICE_CLASS_PV_INVERTER, defs)))
	assert.Equal([]string{"ac_power_l1", "battery_soc", "operation_status"}, names(QueriedDefinitions(domain.DEVICE_CLASS_BATTERY_INVERTER, defs)))
	assert.Empty(QueriedDefinitions(domain.DEVICE_CLASS_EMETER, defs))
}
