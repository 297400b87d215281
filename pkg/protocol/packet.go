// Package protocol implements the hnet wire codec: length-prefixed frames
// carrying tagged packets.
//
// A packet payload is a 1-byte packet id followed by its fields. Fixed-size
// fields (keys, nonces, signatures) are raw bytes; variable fields carry a
// 4-byte big-endian length prefix; optional strings carry a 1-byte presence
// flag before the prefix; booleans are a single 0/1 byte.
package protocol

import (
	"errors"
	"fmt"
)

// Sizes of the fixed-length cryptographic fields.
const (
	SigningKeySize = 32
	NonceSize      = 32
	SignatureSize  = 64
)

// ID identifies a packet variant on the wire.
type ID byte

const (
	IDGetChallenge     ID = 0x01
	IDChallenge        ID = 0x02
	IDLoginRequest     ID = 0x03
	IDLoginResponse    ID = 0x04
	IDSetProfile       ID = 0x05
	IDProfileUpdated   ID = 0x06
	IDSearchUser       ID = 0x07
	IDUserFound        ID = 0x08
	IDUserNotFound     ID = 0x09
	IDSendMessage      ID = 0x0A
	IDMessageReceived  ID = 0x0B
	IDMessageDelivered ID = 0x0C
	IDPing             ID = 0x0D
	IDPong             ID = 0x0E
)

// String returns the packet name for logging.
func (id ID) String() string {
	switch id {
	case IDGetChallenge:
		return "GetChallenge"
	case IDChallenge:
		return "Challenge"
	case IDLoginRequest:
		return "LoginRequest"
	case IDLoginResponse:
		return "LoginResponse"
	case IDSetProfile:
		return "SetProfile"
	case IDProfileUpdated:
		return "ProfileUpdated"
	case IDSearchUser:
		return "SearchUser"
	case IDUserFound:
		return "UserFound"
	case IDUserNotFound:
		return "UserNotFound"
	case IDSendMessage:
		return "SendMessage"
	case IDMessageReceived:
		return "MessageReceived"
	case IDMessageDelivered:
		return "MessageDelivered"
	case IDPing:
		return "Ping"
	case IDPong:
		return "Pong"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", byte(id))
	}
}

// ErrUnknownPacket is returned by Decode for an unrecognized packet id.
var ErrUnknownPacket = errors.New("protocol: unknown packet id")

// ErrTruncatedPacket is returned when a payload ends before its fields do.
var ErrTruncatedPacket = errors.New("protocol: truncated packet")

// Packet is one decoded wire message.
type Packet interface {
	ID() ID
}

// GetChallenge asks the server for a login nonce (client to server).
type GetChallenge struct {
	SigningKey []byte // 32 bytes
}

// Challenge carries the nonce the client must sign (server to client).
type Challenge struct {
	Nonce []byte // 32 bytes
}

// LoginRequest proves possession of the signing key (client to server).
type LoginRequest struct {
	SigningKey []byte // 32 bytes
	Signature  []byte // 64 bytes, over the raw nonce
}

// LoginResponse reports the outcome of a login attempt (server to client).
type LoginResponse struct {
	Accepted      bool
	ProfileExists bool
}

// SetProfile publishes or updates the caller's profile (client to server).
type SetProfile struct {
	EncKey    []byte
	FirstName string
	Username  *string
	LastName  *string
}

// ProfileUpdated acknowledges a SetProfile (server to client).
type ProfileUpdated struct {
	Success bool
}

// SearchUser looks up a user by exact username (client to server).
type SearchUser struct {
	Username string
}

// UserFound carries a search hit (server to client).
type UserFound struct {
	SigningKey []byte
	EncKey     []byte
	Username   *string
	FirstName  string
	LastName   *string
}

// UserNotFound is the search miss reply (server to client).
type UserNotFound struct{}

// SendMessage submits a ciphertext for a recipient (client to server).
type SendMessage struct {
	Recipient  []byte // 32 bytes
	Ciphertext []byte
}

// MessageReceived delivers a ciphertext to its recipient (server to client).
type MessageReceived struct {
	SenderKey    []byte
	SenderEncKey []byte
	Ciphertext   []byte
}

// MessageDelivered acknowledges server acceptance of a SendMessage. It is
// not an end-to-end receipt.
type MessageDelivered struct {
	Success bool
}

// Ping is a keepalive probe; Pong is its reply. Both are empty.
type Ping struct{}
type Pong struct{}

func (GetChallenge) ID() ID     { return IDGetChallenge }
func (Challenge) ID() ID        { return IDChallenge }
func (LoginRequest) ID() ID     { return IDLoginRequest }
func (LoginResponse) ID() ID    { return IDLoginResponse }
func (SetProfile) ID() ID       { return IDSetProfile }
func (ProfileUpdated) ID() ID   { return IDProfileUpdated }
func (SearchUser) ID() ID       { return IDSearchUser }
func (UserFound) ID() ID        { return IDUserFound }
func (UserNotFound) ID() ID     { return IDUserNotFound }
func (SendMessage) ID() ID      { return IDSendMessage }
func (MessageReceived) ID() ID  { return IDMessageReceived }
func (MessageDelivered) ID() ID { return IDMessageDelivered }
func (Ping) ID() ID             { return IDPing }
func (Pong) ID() ID             { return IDPong }
