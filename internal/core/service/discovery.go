package service

import (
	"bytes"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strconv"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/core/port"
	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"

	"go.uber.org/zap"
)

const (
	deviceQueryFirst = domain.REGISTER_DEVICE_NAME
	deviceQueryLast  = 0x008220ff
)

// DeviceList is a fixed set of devices.
type DeviceList []domain.Device

func (l DeviceList) Devices() []domain.Device {
	return l
}

func (l DeviceList) FindBySerial(serial uint32) (domain.Device, bool) {
	for _, d := range l {
		if d.SerialNumber == serial {
			return d, true
		}
	}
	return domain.Device{}, false
}

// DeviceDiscovery finds speedwire devices on the local network and identifies their class and model.
type DeviceDiscovery struct {
	local         speedwire.Address
	sender        port.PacketSender
	tags          port.TagResolver
	devices       map[string]*domain.Device
	preRegistered []string
	required      []uint32
	packetID      uint16
	logger        *zap.Logger
}

func NewDeviceDiscovery(local speedwire.Address, sender port.PacketSender, tags port.TagResolver, preRegistered []string, required []uint32, logger *zap.Logger) *DeviceDiscovery {
	return &DeviceDiscovery{
		local:         local,
		sender:        sender,
		tags:          tags,
		devices:       map[string]*domain.Device{},
		preRegistered: preRegistered,
		required:      required,
		logger:        logger,
	}
}

func (s *DeviceDiscovery) nextPacketID() uint16 {
	s.packetID = (s.packetID + 1) & 0x7fff
	if s.packetID == 0 {
		s.packetID = 1
	}
	return s.packetID
}

// Start sends the multicast discovery request and a unicast identification query to each pre-registered address.
func (s *DeviceDiscovery) Start() error {
	var errs []error
	if err := s.sender.Broadcast(speedwire.DiscoveryRequest()); err != nil {
		errs = append(errs, fmt.Errorf("discovery broadcast: %w", err))
	}
	for _, ip := range s.preRegistered {
		if err := s.sender.SendTo(ip, speedwire.EncodeDiscoveryQuery(s.local, s.nextPacketID())); err != nil {
			errs = append(errs, fmt.Errorf("discovery query to %s: %w", ip, err))
		}
	}
	return errors.Join(errs...)
}

// OnDatagram updates the device set from a received datagram. It returns true if a device was added or changed.
func (s *DeviceDiscovery) OnDatagram(buf []byte, src netip.Addr) bool {
	frame, err := speedwire.DecodeFrame(buf)
	if err != nil {
		return false
	}
	switch {
	case frame.IsDiscovery():
		if speedwire.IsDiscoveryRequest(frame.Bytes()) {
			return false
		}
		ip, ok := speedwire.DiscoveryResponseIP(frame)
		if !ok {
			ip = src
		}
		return s.onDiscoveryResponse(ip.String())
	case frame.IsEmeter():
		packet, err := speedwire.NewEmeterPacket(frame)
		if err != nil {
			return false
		}
		return s.update(src.String(), func(d *domain.Device) {
			d.SusyID = packet.SusyID()
			d.SerialNumber = packet.SerialNumber()
			d.DeviceClass = domain.DEVICE_CLASS_EMETER
			if d.DeviceModel == "" {
				d.DeviceModel = "Energy Meter"
			}
		})
	case frame.IsInverter():
		packet, err := speedwire.NewInverterPacket(frame)
		if err != nil || packet.DstSerialNumber() != s.local.SerialNumber {
			return false
		}
		return s.onInverterReply(src.String(), packet)
	}
	return false
}

func (s *DeviceDiscovery) onDiscoveryResponse(ip string) bool {
	if _, ok := s.devices[ip]; ok {
		return false
	}
	s.devices[ip] = &domain.Device{IPAddress: ip, DeviceClass: domain.DEVICE_CLASS_UNKNOWN}
	s.logger.Debug("discovery: response", zap.String("ip", ip))
	if err := s.sender.SendTo(ip, speedwire.EncodeDiscoveryQuery(s.local, s.nextPacketID())); err != nil {
		s.logger.Warn("discovery: cannot query device", zap.String("ip", ip), zap.Error(err))
	}
	return true
}

func (s *DeviceDiscovery) onInverterReply(ip string, packet speedwire.InverterPacket) bool {
	if packet.ErrorCode() != 0 {
		return false
	}
	switch packet.CommandID() &^ 0xff {
	case speedwire.DISCOVERY_QUERY:
		changed := s.update(ip, func(d *domain.Device) {
			d.SusyID = packet.SrcSusyID()
			d.SerialNumber = packet.SrcSerialNumber()
		})
		d := s.devices[ip]
		if d.DeviceClass == domain.DEVICE_CLASS_UNKNOWN || d.DeviceClass == "" {
			buf := speedwire.EncodeQueryRequest(d.Address(), s.local, s.nextPacketID(), speedwire.DEVICE_QUERY, deviceQueryFirst, deviceQueryLast)
			if err := s.sender.SendTo(ip, buf); err != nil {
				s.logger.Warn("discovery: cannot query device type", zap.String("ip", ip), zap.Error(err))
			}
		}
		return changed
	case speedwire.DEVICE_QUERY:
		records, err := packet.RawRecords(speedwire.DEVICE_QUERY)
		if err != nil && len(records) == 0 {
			return false
		}
		return s.update(ip, func(d *domain.Device) {
			d.SusyID = packet.SrcSusyID()
			d.SerialNumber = packet.SrcSerialNumber()
			for _, r := range records {
				s.applyDeviceRecord(d, r)
			}
			if d.DeviceClass == domain.DEVICE_CLASS_UNKNOWN || d.DeviceClass == "" {
				d.DeviceClass = domain.DEVICE_CLASS_INVERTER
			}
		})
	}
	return false
}

func (s *DeviceDiscovery) applyDeviceRecord(d *domain.Device, r speedwire.RawRecord) {
	switch r.RegisterID {
	case domain.REGISTER_DEVICE_NAME:
		name := r.Data[:r.DataSize]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		d.DeviceName = string(name)
	case domain.REGISTER_DEVICE_CLASS:
		if tag, ok := selectedAttribute(r); ok {
			d.DeviceClass = domain.DeviceClassFromTag(tag)
		}
	case domain.REGISTER_DEVICE_TYPE:
		if tag, ok := selectedAttribute(r); ok {
			d.DeviceModel = strconv.FormatUint(uint64(tag), 10)
			if s.tags != nil {
				if name, ok := s.tags.TagName(tag); ok {
					d.DeviceModel = name
				}
			}
		}
	}
}

func selectedAttribute(r speedwire.RawRecord) (uint32, bool) {
	for i := 0; ; i += 4 {
		w, ok := r.Uint32(i)
		if !ok || w&attributeMask >= attributeEnd {
			return 0, false
		}
		if w>>24 == attributeActive {
			return w & attributeMask, true
		}
	}
}

func (s *DeviceDiscovery) update(ip string, fn func(*domain.Device)) bool {
	d, ok := s.devices[ip]
	if !ok {
		d = &domain.Device{IPAddress: ip, DeviceClass: domain.DEVICE_CLASS_UNKNOWN}
		s.devices[ip] = d
	}
	before := *d
	fn(d)
	if before != *d {
		s.logger.Info("discovery: device updated", zap.Stringer("device", *d))
		return true
	}
	return !ok
}

// Devices returns the identified devices ordered by serial number.
func (s *DeviceDiscovery) Devices() []domain.Device {
	var devices []domain.Device
	for _, d := range s.devices {
		if d.SerialNumber != 0 {
			devices = append(devices, *d)
		}
	}
	slices.SortFunc(devices, func(a, b domain.Device) int {
		if a.SerialNumber < b.SerialNumber {
			return -1
		} else if a.SerialNumber > b.SerialNumber {
			return 1
		}
		return 0
	})
	return devices
}

func (s *DeviceDiscovery) FindBySerial(serial uint32) (domain.Device, bool) {
	return DeviceList(s.Devices()).FindBySerial(serial)
}

// Missing returns the required serial numbers that have not been identified.
func (s *DeviceDiscovery) Missing() []uint32 {
	var missing []uint32
	for _, serial := range s.required {
		if _, ok := s.FindBySerial(serial); !ok {
			missing = append(missing, serial)
		}
	}
	return missing
}

// WakeCandidates returns the pre-registered addresses whose device has not been identified.
func (s *DeviceDiscovery) WakeCandidates() []string {
	var ips []string
	for _, ip := range s.preRegistered {
		if d, ok := s.devices[ip]; !ok || !d.IsComplete() {
			ips = append(ips, ip)
		}
	}
	return ips
}

// SetInterfaceIP records the local interface address devices are reached through.
func (s *DeviceDiscovery) SetInterfaceIP(ip string) {
	for _, d := range s.devices {
		d.InterfaceIP = ip
	}
}

// ensure interface compliance
var _ port.DeviceRegistry = (*DeviceDiscovery)(nil)
var _ port.DeviceRegistry = DeviceList(nil)
