package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0x0D} // Ping

	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrameRejectsOversized(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)

	_, err := ReadFrame(bytes.NewReader(header[:]))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameEOFOnDisconnect(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 10})
	buf.Write([]byte{1, 2, 3})

	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}

func TestLoginRequestRoundTrip(t *testing.T) {
	pkt := LoginRequest{
		SigningKey: bytes.Repeat([]byte{0xAA}, SigningKeySize),
		Signature:  bytes.Repeat([]byte{0xBB}, SignatureSize),
	}

	payload, err := Encode(pkt)
	require.NoError(t, err)
	assert.Equal(t, byte(IDLoginRequest), payload[0])

	decoded, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, pkt, decoded)
}

func TestSetProfileOptionalFields(t *testing.T) {
	tests := []struct {
		name string
		pkt  SetProfile
	}{
		{
			name: "all fields present",
			pkt: SetProfile{
				EncKey:    []byte{1, 2, 3},
				FirstName: "Ada",
				Username:  strptr("ada"),
				LastName:  strptr("Lovelace"),
			},
		},
		{
			name: "optionals absent",
			pkt: SetProfile{
				EncKey:    []byte{9},
				FirstName: "Ada",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Encode(tt.pkt)
			require.NoError(t, err)

			decoded, err := Decode(payload)
			require.NoError(t, err)
			assert.Equal(t, tt.pkt, decoded)
		})
	}
}

func TestMessageReceivedRoundTrip(t *testing.T) {
	pkt := MessageReceived{
		SenderKey:    bytes.Repeat([]byte{0x01}, SigningKeySize),
		SenderEncKey: []byte{4, 5, 6},
		Ciphertext:   []byte("opaque ciphertext"),
	}

	payload, err := Encode(pkt)
	require.NoError(t, err)

	decoded, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, pkt, decoded)
}

func TestEncodeRejectsBadKeyLength(t *testing.T) {
	_, err := Encode(GetChallenge{SigningKey: []byte{1, 2, 3}})
	assert.Error(t, err)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty payload", nil},
		{"unknown id", []byte{0xFF}},
		{"truncated fixed field", append([]byte{byte(IDGetChallenge)}, 1, 2, 3)},
		{"truncated length prefix", []byte{byte(IDSearchUser), 0, 0}},
		{"length past end", []byte{byte(IDSearchUser), 0, 0, 0, 200, 'a'}},
		{"bad presence flag", []byte{byte(IDSetProfile), 0, 0, 0, 1, 9, 0, 0, 0, 1, 'x', 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.payload)
			assert.Error(t, err)
		})
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	payload, err := Encode(Ping{})
	require.NoError(t, err)

	_, err = Decode(append(payload, 0x00))
	assert.Error(t, err)
}

func TestUnknownPacketErrorIs(t *testing.T) {
	_, err := Decode([]byte{0x7F})
	assert.True(t, errors.Is(err, ErrUnknownPacket))
}
