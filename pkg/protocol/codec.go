package protocol

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes p into a frame payload (packet id + fields).
func Encode(p Packet) ([]byte, error) {
	e := &encoder{buf: []byte{byte(p.ID())}}

	switch pkt := p.(type) {
	case GetChallenge:
		e.fixed(pkt.SigningKey, SigningKeySize, "signing key")
	case Challenge:
		e.fixed(pkt.Nonce, NonceSize, "nonce")
	case LoginRequest:
		e.fixed(pkt.SigningKey, SigningKeySize, "signing key")
		e.fixed(pkt.Signature, SignatureSize, "signature")
	case LoginResponse:
		e.boolean(pkt.Accepted)
		e.boolean(pkt.ProfileExists)
	case SetProfile:
		e.bytes(pkt.EncKey)
		e.str(pkt.FirstName)
		e.optStr(pkt.Username)
		e.optStr(pkt.LastName)
	case ProfileUpdated:
		e.boolean(pkt.Success)
	case SearchUser:
		e.str(pkt.Username)
	case UserFound:
		e.fixed(pkt.SigningKey, SigningKeySize, "signing key")
		e.bytes(pkt.EncKey)
		e.optStr(pkt.Username)
		e.str(pkt.FirstName)
		e.optStr(pkt.LastName)
	case UserNotFound, Ping, Pong:
		// id only
	case SendMessage:
		e.fixed(pkt.Recipient, SigningKeySize, "recipient key")
		e.bytes(pkt.Ciphertext)
	case MessageReceived:
		e.fixed(pkt.SenderKey, SigningKeySize, "sender key")
		e.bytes(pkt.SenderEncKey)
		e.bytes(pkt.Ciphertext)
	case MessageDelivered:
		e.boolean(pkt.Success)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownPacket, p)
	}

	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

// Decode parses a frame payload into a Packet. It never panics on malformed
// input; any structural problem yields an error.
func Decode(payload []byte) (Packet, error) {
	if len(payload) == 0 {
		return nil, ErrTruncatedPacket
	}

	d := &decoder{buf: payload[1:]}
	id := ID(payload[0])

	var p Packet
	switch id {
	case IDGetChallenge:
		p = GetChallenge{SigningKey: d.fixed(SigningKeySize)}
	case IDChallenge:
		p = Challenge{Nonce: d.fixed(NonceSize)}
	case IDLoginRequest:
		p = LoginRequest{SigningKey: d.fixed(SigningKeySize), Signature: d.fixed(SignatureSize)}
	case IDLoginResponse:
		p = LoginResponse{Accepted: d.boolean(), ProfileExists: d.boolean()}
	case IDSetProfile:
		p = SetProfile{EncKey: d.bytes(), FirstName: d.str(), Username: d.optStr(), LastName: d.optStr()}
	case IDProfileUpdated:
		p = ProfileUpdated{Success: d.boolean()}
	case IDSearchUser:
		p = SearchUser{Username: d.str()}
	case IDUserFound:
		p = UserFound{
			SigningKey: d.fixed(SigningKeySize),
			EncKey:     d.bytes(),
			Username:   d.optStr(),
			FirstName:  d.str(),
			LastName:   d.optStr(),
		}
	case IDUserNotFound:
		p = UserNotFound{}
	case IDSendMessage:
		p = SendMessage{Recipient: d.fixed(SigningKeySize), Ciphertext: d.bytes()}
	case IDMessageReceived:
		p = MessageReceived{SenderKey: d.fixed(SigningKeySize), SenderEncKey: d.bytes(), Ciphertext: d.bytes()}
	case IDMessageDelivered:
		p = MessageDelivered{Success: d.boolean()}
	case IDPing:
		p = Ping{}
	case IDPong:
		p = Pong{}
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownPacket, byte(id))
	}

	if d.err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, d.err)
	}
	if len(d.buf) != d.off {
		return nil, fmt.Errorf("decode %s: %d trailing bytes", id, len(d.buf)-d.off)
	}
	return p, nil
}

// encoder appends fields to a payload buffer, latching the first error.
type encoder struct {
	buf []byte
	err error
}

func (e *encoder) fixed(b []byte, size int, what string) {
	if e.err != nil {
		return
	}
	if len(b) != size {
		e.err = fmt.Errorf("protocol: %s must be %d bytes, got %d", what, size, len(b))
		return
	}
	e.buf = append(e.buf, b...)
}

func (e *encoder) bytes(b []byte) {
	if e.err != nil {
		return
	}
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) str(s string) {
	e.bytes([]byte(s))
}

func (e *encoder) optStr(s *string) {
	if e.err != nil {
		return
	}
	if s == nil {
		e.buf = append(e.buf, 0)
		return
	}
	e.buf = append(e.buf, 1)
	e.str(*s)
}

func (e *encoder) boolean(v bool) {
	if e.err != nil {
		return
	}
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// decoder consumes fields from a payload buffer, latching the first error.
// Accessors return zero values once an error is set, so call sites can read
// all fields and check the error once.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = ErrTruncatedPacket
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) fixed(size int) []byte {
	b := d.take(size)
	if b == nil {
		return nil
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}

func (d *decoder) bytes() []byte {
	lenBytes := d.take(4)
	if lenBytes == nil {
		return nil
	}
	n := binary.BigEndian.Uint32(lenBytes)
	if n > MaxFrameSize {
		d.err = fmt.Errorf("protocol: field length %d exceeds frame limit", n)
		return nil
	}
	b := d.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (d *decoder) str() string {
	return string(d.bytes())
}

func (d *decoder) optStr() *string {
	flag := d.take(1)
	if flag == nil {
		return nil
	}
	switch flag[0] {
	case 0:
		return nil
	case 1:
		s := d.str()
		if d.err != nil {
			return nil
		}
		return &s
	default:
		d.err = fmt.Errorf("protocol: invalid presence flag 0x%02X", flag[0])
		return nil
	}
}

func (d *decoder) boolean() bool {
	b := d.take(1)
	if b == nil {
		return false
	}
	return b[0] != 0
}
