package service

import (
	"time"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"
)

type Query struct {
	Command speedwire.Command
	First   uint32
	Last    uint32
}

var pvInverterQueries = []Query{
	{speedwire.DC_QUERY, 0x00251e00, 0x00251eff},
	{speedwire.DC_QUERY, 0x00451f00, 0x004521ff},
	{speedwire.AC_QUERY, 0x00464000, 0x004642ff},
	{speedwire.STATUS_QUERY, 0x00214800, 0x002148ff},
	{speedwire.STATUS_QUERY, 0x00416400, 0x004164ff},
}

var batteryInverterQueries = []Query{
	{speedwire.STATUS_QUERY, 0x00214800, 0x002148ff},
	{speedwire.STATUS_QUERY, 0x00416400, 0x004164ff},
	{speedwire.STATUS_QUERY | speedwire.COMPONENT_2, 0x00412a00, 0x00498aff},
	{speedwire.AC_QUERY, 0x00263f00, 0x00495dff},
}

// QueriesFor returns the query set polled from a device of the given class.
func QueriesFor(class domain.DeviceClass) []Query {
	switch class {
	case domain.DEVICE_CLASS_PV_INVERTER, domain.DEVICE_CLASS_INVERTER:
		return pvInverterQueries
	case domain.DEVICE_CLASS_BATTERY_INVERTER:
		return batteryInverterQueries
	}
	return nil
}

// QueryPlanner decides the polling cadence, slowing down while the pv inverters report no power.
type QueryPlanner struct {
	Interval            time.Duration
	ReceiveTimeout      time.Duration
	NightInterval       time.Duration
	NightReceiveTimeout time.Duration
	nightMode           bool
}

func (p *QueryPlanner) NightMode() bool {
	return p.nightMode
}

// UpdateNightMode evaluates the mpp1 power entries of the pv inverters after a completed round.
// Night mode requires every entry to hold a measured zero.
func (p *QueryPlanner) UpdateNightMode(mpp1 []*domain.MeasurementEntry) bool {
	night := len(mpp1) > 0
	for _, e := range mpp1 {
		if e == nil || e.Value.Timer == 0 || e.Value.Value != 0 {
			night = false
			break
		}
	}
	p.nightMode = night
	return night
}

func (p *QueryPlanner) QueryInterval() time.Duration {
	if p.nightMode {
		return p.NightInterval
	}
	return p.Interval
}

func (p *QueryPlanner) QueryReceiveTimeout() time.Duration {
	if p.nightMode {
		return p.NightReceiveTimeout
	}
	return p.ReceiveTimeout
}

// QueriedDefinitions returns the definitions whose register is polled from a device of the given class.
func QueriedDefinitions(class domain.DeviceClass, defs []domain.RegisterDefinition) []domain.RegisterDefinition {
	var queried []domain.RegisterDefinition
	for _, d := range defs {
		for _, q := range QueriesFor(class) {
			if d.Key.Command == q.Command && d.Key.RegisterID >= q.First && d.Key.RegisterID <= q.Last {
				queried = append(queried, d)
				break
			}
		}
	}
	return queried
}
