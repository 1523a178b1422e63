package service

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/core/port"
	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"

	"go.uber.org/zap"
)

type ReplyOutcome int

const (
	REPLY_ACCEPTED ReplyOutcome = iota
	REPLY_FRAGMENT
	REPLY_NO_TOKEN
	REPLY_INVALID
	REPLY_LOST_CONNECTION
	REPLY_BAD_PASSWORD
	REPLY_LOGIN_FAILED
	REPLY_QUERY_ERROR
	REPLY_MALFORMED
)

func (o ReplyOutcome) String() string {
	switch o {
	case REPLY_ACCEPTED:
		return "accepted"
	case REPLY_FRAGMENT:
		return "fragment"
	case REPLY_NO_TOKEN:
		return "no_token"
	case REPLY_INVALID:
		return "invalid"
	case REPLY_LOST_CONNECTION:
		return "lost_connection"
	case REPLY_BAD_PASSWORD:
		return "bad_password"
	case REPLY_LOGIN_FAILED:
		return "login_failed"
	case REPLY_QUERY_ERROR:
		return "query_error"
	case REPLY_MALFORMED:
		return "malformed"
	}
	return "unknown"
}

type LoginState int

const (
	LOGGED_OUT LoginState = iota
	AWAITING_LOGIN
	LOGGED_IN
)

func (s LoginState) String() string {
	switch s {
	case AWAITING_LOGIN:
		return "awaiting_login"
	case LOGGED_IN:
		return "logged_in"
	}
	return "logged_out"
}

var ErrNeedsLogin = errors.New("command session: login required")

// QueryToken is an outstanding command waiting for its reply.
type QueryToken struct {
	SusyID       uint16
	SerialNumber uint32
	PacketID     uint16
	Address      string
	Command      speedwire.Command
	Fragments    uint16
}

type tokenKey struct {
	susyID   uint16
	serial   uint32
	packetID uint16
}

// CommandSession sends inverter commands and correlates their replies.
type CommandSession struct {
	local      speedwire.Address
	sender     port.PacketSender
	tokens     map[tokenKey]*QueryToken
	packetID   uint16
	needsLogin bool
	state      LoginState
	logger     *zap.Logger
}

func NewCommandSession(local speedwire.Address, sender port.PacketSender, logger *zap.Logger) *CommandSession {
	return &CommandSession{
		local:      local,
		sender:     sender,
		tokens:     map[tokenKey]*QueryToken{},
		needsLogin: true,
		state:      LOGGED_OUT,
		logger:     logger,
	}
}

func (s *CommandSession) nextPacketID() uint16 {
	s.packetID = (s.packetID + 1) & 0x7fff
	if s.packetID == 0 {
		s.packetID = 1
	}
	return s.packetID
}

func (s *CommandSession) addToken(device domain.Device, packetID uint16, cmd speedwire.Command) QueryToken {
	token := &QueryToken{
		SusyID:       device.SusyID,
		SerialNumber: device.SerialNumber,
		PacketID:     packetID,
		Address:      device.IPAddress,
		Command:      cmd,
	}
	s.tokens[tokenKey{susyID: device.SusyID, serial: device.SerialNumber, packetID: packetID}] = token
	return *token
}

// SendQuery sends a register range query to the device and records a token for its reply.
func (s *CommandSession) SendQuery(device domain.Device, cmd speedwire.Command, first, last uint32) (QueryToken, error) {
	if s.needsLogin {
		return QueryToken{}, ErrNeedsLogin
	}
	id := s.nextPacketID()
	buf := speedwire.EncodeQueryRequest(device.Address(), s.local, id, cmd, first, last)
	if err := s.sender.SendTo(device.IPAddress, buf); err != nil {
		return QueryToken{}, fmt.Errorf("query %s to %s: %w", cmd, device.IPAddress, err)
	}
	return s.addToken(device, id, cmd), nil
}

// Login sends a login request to every inverter and waits for their replies.
func (s *CommandSession) Login(devices []domain.Device, group speedwire.UserGroup, password string, now uint32) error {
	s.needsLogin = false
	s.state = AWAITING_LOGIN
	var errs []error
	for _, d := range devices {
		if !d.DeviceClass.IsInverter() || d.IPAddress == "" {
			continue
		}
		id := s.nextPacketID()
		buf, err := speedwire.EncodeLoginRequest(s.local, id, group, password, now)
		if err != nil {
			s.needsLogin = true
			s.state = LOGGED_OUT
			return err
		}
		if err := s.sender.SendTo(d.IPAddress, buf); err != nil {
			errs = append(errs, fmt.Errorf("login to %s: %w", d.IPAddress, err))
			continue
		}
		s.addToken(d, id, speedwire.LOGIN)
	}
	return errors.Join(errs...)
}

// Logoff sends a logoff request to every inverter. Logoff requests are not answered.
func (s *CommandSession) Logoff(devices []domain.Device) error {
	s.state = LOGGED_OUT
	var errs []error
	for _, d := range devices {
		if !d.DeviceClass.IsInverter() || d.IPAddress == "" {
			continue
		}
		buf := speedwire.EncodeLogoffRequest(s.local, s.nextPacketID())
		if err := s.sender.SendTo(d.IPAddress, buf); err != nil {
			errs = append(errs, fmt.Errorf("logoff from %s: %w", d.IPAddress, err))
		}
	}
	return errors.Join(errs...)
}

// OnReply correlates an inverter reply with its token and returns the decoded records of accepted replies.
func (s *CommandSession) OnReply(frame speedwire.Frame, src netip.Addr) (ReplyOutcome, *QueryToken, []speedwire.RawRecord) {
	packet, err := speedwire.NewInverterPacket(frame)
	if err != nil {
		return REPLY_MALFORMED, nil, nil
	}

	key := tokenKey{susyID: packet.SrcSusyID(), serial: packet.SrcSerialNumber(), packetID: packet.PacketID()}
	token, ok := s.tokens[key]
	if !ok {
		return REPLY_NO_TOKEN, nil, nil
	}
	if token.Address != src.String() || packet.CommandID()&^0xff != token.Command&^0xff {
		s.logger.Debug("session: reply does not match token",
			zap.String("token_address", token.Address), zap.Stringer("src", src),
			zap.Stringer("token_command", token.Command), zap.Stringer("command", packet.CommandID()))
		return REPLY_INVALID, token, nil
	}

	if code := packet.ErrorCode(); code != 0 {
		delete(s.tokens, key)
		switch {
		case code == speedwire.ERROR_LOST_CONNECTION:
			s.needsLogin = true
			s.state = LOGGED_OUT
			return REPLY_LOST_CONNECTION, token, nil
		case token.Command == speedwire.LOGIN:
			s.needsLogin = true
			s.state = LOGGED_OUT
			if code == speedwire.ERROR_BAD_PASSWORD {
				return REPLY_BAD_PASSWORD, token, nil
			}
			return REPLY_LOGIN_FAILED, token, nil
		}
		s.logger.Debug("session: query error", zap.Stringer("command", token.Command), zap.Uint16("error", code))
		return REPLY_QUERY_ERROR, token, nil
	}

	records, err := packet.RawRecords(token.Command)
	if err != nil {
		delete(s.tokens, key)
		s.logger.Debug("session: malformed reply", zap.Error(err))
		return REPLY_MALFORMED, token, nil
	}
	if token.Command == speedwire.LOGIN {
		s.state = LOGGED_IN
	}
	if fragment := packet.FragmentID(); fragment != 0 {
		token.Fragments = fragment
		return REPLY_FRAGMENT, token, records
	}
	delete(s.tokens, key)
	return REPLY_ACCEPTED, token, records
}

// Clear drops all outstanding tokens.
func (s *CommandSession) Clear() {
	s.tokens = map[tokenKey]*QueryToken{}
}

func (s *CommandSession) Size() int {
	return len(s.tokens)
}

func (s *CommandSession) NeedsLogin() bool {
	return s.needsLogin
}

// RequireLogin forces a logoff and login before the next query round.
func (s *CommandSession) RequireLogin() {
	s.needsLogin = true
}

func (s *CommandSession) State() LoginState {
	return s.state
}
