package service

import (
	"net/netip"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/core/port"
	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"

	"go.uber.org/zap"
)

type DatagramKind int

const (
	DATAGRAM_DROPPED DatagramKind = iota
	DATAGRAM_IGNORED
	DATAGRAM_EMETER
	DATAGRAM_INVERTER
	DATAGRAM_DISCOVERY
)

type DispatchResult struct {
	Kind    DatagramKind
	Outcome ReplyOutcome
}

// Dispatcher routes received datagrams to the meter or inverter decoding path.
type Dispatcher struct {
	obis     *ObisFilter
	registry *MeasurementRegistry
	session  *CommandSession
	devices  port.DeviceRegistry
	logger   *zap.Logger
}

func NewDispatcher(obis *ObisFilter, registry *MeasurementRegistry, session *CommandSession, devices port.DeviceRegistry, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		obis:     obis,
		registry: registry,
		session:  session,
		devices:  devices,
		logger:   logger,
	}
}

func (d *Dispatcher) Dispatch(buf []byte, src netip.Addr) DispatchResult {
	frame, err := speedwire.DecodeFrame(buf)
	if err != nil {
		d.logger.Debug("dispatch: dropping datagram", zap.Stringer("src", src), zap.Error(err))
		return DispatchResult{Kind: DATAGRAM_DROPPED}
	}
	switch {
	case frame.IsEmeter():
		return d.dispatchEmeter(frame, src)
	case frame.IsInverter():
		return d.dispatchInverter(frame, src)
	case frame.IsDiscovery():
		return DispatchResult{Kind: DATAGRAM_DISCOVERY}
	}
	return DispatchResult{Kind: DATAGRAM_IGNORED}
}

func (d *Dispatcher) dispatchEmeter(frame speedwire.Frame, src netip.Addr) DispatchResult {
	packet, err := speedwire.NewEmeterPacket(frame)
	if err != nil {
		d.logger.Debug("dispatch: dropping emeter datagram", zap.Stringer("src", src), zap.Error(err))
		return DispatchResult{Kind: DATAGRAM_DROPPED}
	}

	device, ok := d.devices.FindBySerial(packet.SerialNumber())
	if !ok {
		if len(d.devices.Devices()) > 0 {
			return DispatchResult{Kind: DATAGRAM_IGNORED}
		}
		device = domain.Device{
			SusyID:       packet.SusyID(),
			SerialNumber: packet.SerialNumber(),
			DeviceClass:  domain.DEVICE_CLASS_EMETER,
			IPAddress:    src.String(),
		}
	}

	timer := packet.Time()
	power := map[uint8]uint32{}
	it := packet.Elements()
	for e, ok := it.Next(); ok; e, ok = it.Next() {
		if e.Channel() == 0 && e.Type() == speedwire.OBIS_TYPE_ACTUAL && e.Tariff() == 0 {
			if v, ok := e.Uint32(); ok {
				power[e.Index()] = v
			}
		}
		d.obis.Consume(device, e, timer)
	}

	// signed power is positive minus negative active power of the same line
	for _, s := range domain.SignedPowerSources {
		pos, okPos := power[s.Positive]
		neg, okNeg := power[s.Negative]
		if !okPos || !okNeg {
			continue
		}
		signed := int32(pos) - int32(neg)
		if e, ok := speedwire.NewObisElement(speedwire.EncodeObisElement(s.Signed, uint64(uint32(signed)))); ok {
			d.obis.Consume(device, e, timer)
		}
	}
	return DispatchResult{Kind: DATAGRAM_EMETER}
}

func (d *Dispatcher) dispatchInverter(frame speedwire.Frame, src netip.Addr) DispatchResult {
	outcome, token, records := d.session.OnReply(frame, src)
	result := DispatchResult{Kind: DATAGRAM_INVERTER, Outcome: outcome}

	switch outcome {
	case REPLY_NO_TOKEN:
		d.logger.Debug("dispatch: reply without token", zap.Stringer("src", src))
		return result
	case REPLY_LOST_CONNECTION:
		d.logger.Warn("dispatch: inverter lost connection, login required", zap.Uint32("serial", token.SerialNumber))
		return result
	case REPLY_BAD_PASSWORD:
		d.logger.Error("dispatch: login failed, bad password", zap.Uint32("serial", token.SerialNumber))
		return result
	case REPLY_LOGIN_FAILED:
		d.logger.Error("dispatch: login failed", zap.Uint32("serial", token.SerialNumber))
		return result
	}
	if token == nil || len(records) == 0 {
		return result
	}

	device, ok := d.devices.FindBySerial(token.SerialNumber)
	if !ok {
		device = domain.Device{
			SusyID:       token.SusyID,
			SerialNumber: token.SerialNumber,
			DeviceClass:  domain.DEVICE_CLASS_INVERTER,
			IPAddress:    token.Address,
		}
	}
	for _, r := range records {
		d.registry.Consume(device, r)
	}
	return result
}
