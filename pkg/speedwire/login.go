package speedwire

import (
	"errors"
	"strings"
)

type UserGroup uint32

const (
	USER_GROUP_USER      UserGroup = 0x07
	USER_GROUP_INSTALLER UserGroup = 0x0a

	LOGIN_TIMEOUT_SECONDS = 900
	PASSWORD_LENGTH       = 12

	passwordKeyUser      = 0x88
	passwordKeyInstaller = 0xbb
)

var ErrPasswordTooLong = errors.New("speedwire: password longer than 12 characters")

// ParseUserGroup maps "user" and "installer" to their user group codes.
func ParseUserGroup(s string) (UserGroup, error) {
	switch strings.ToLower(s) {
	case "user", "":
		return USER_GROUP_USER, nil
	case "installer":
		return USER_GROUP_INSTALLER, nil
	}
	return 0, errors.New("speedwire: unknown user group " + s)
}

func (g UserGroup) String() string {
	switch g {
	case USER_GROUP_USER:
		return "user"
	case USER_GROUP_INSTALLER:
		return "installer"
	}
	return "unknown"
}

// EncodePassword obfuscates the password the way devices expect it, padded to 12 bytes.
func EncodePassword(group UserGroup, password string) ([]byte, error) {
	if len(password) > PASSWORD_LENGTH {
		return nil, ErrPasswordTooLong
	}
	key := byte(passwordKeyUser)
	if group == USER_GROUP_INSTALLER {
		key = passwordKeyInstaller
	}
	encoded := make([]byte, PASSWORD_LENGTH)
	for i := range encoded {
		if i < len(password) {
			encoded[i] = password[i] + key
		} else {
			encoded[i] = key
		}
	}
	return encoded, nil
}

// EncodeLoginRequest builds a broadcast login datagram. now is the current unix time in seconds.
func EncodeLoginRequest(src Address, packetID uint16, group UserGroup, password string, now uint32) ([]byte, error) {
	encoded, err := EncodePassword(group, password)
	if err != nil {
		return nil, err
	}
	return CommandRequest{
		Destination: BroadcastAddress,
		Source:      src,
		Control:     CONTROL_QUERY,
		PacketID:    packetID,
		Command:     LOGIN,
		Data:        []uint32{uint32(group), LOGIN_TIMEOUT_SECONDS, now, 0},
		Raw:         encoded,
	}.Encode(), nil
}

// EncodeLogoffRequest builds a broadcast logoff datagram.
func EncodeLogoffRequest(src Address, packetID uint16) []byte {
	return CommandRequest{
		Destination: BroadcastAddress,
		Source:      src,
		Control:     CONTROL_LOGOFF,
		PacketID:    packetID,
		Command:     LOGOFF,
		Data:        []uint32{0xffffffff},
	}.Encode()
}
