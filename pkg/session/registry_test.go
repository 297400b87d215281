package session

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnetwork/hnetd/pkg/protocol"
)

// captureSink records framed writes and whether Close was called.
type captureSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (c *captureSink) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *captureSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *captureSink) packets(t *testing.T) []protocol.Packet {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var pkts []protocol.Packet
	r := bytes.NewReader(c.buf.Bytes())
	for r.Len() > 0 {
		payload, err := protocol.ReadFrame(r)
		require.NoError(t, err)
		pkt, err := protocol.Decode(payload)
		require.NoError(t, err)
		pkts = append(pkts, pkt)
	}
	return pkts
}

func identity(b byte) []byte {
	return bytes.Repeat([]byte{b}, protocol.SigningKeySize)
}

func TestSendToUnknownIdentity(t *testing.T) {
	r := NewRegistry()
	err := r.SendTo(identity(1), protocol.Pong{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendToWritesFrame(t *testing.T) {
	r := NewRegistry()
	sink := &captureSink{}
	r.Insert(identity(1), New(identity(1), sink))

	require.NoError(t, r.SendTo(identity(1), protocol.Pong{}))

	pkts := sink.packets(t)
	require.Len(t, pkts, 1)
	assert.Equal(t, protocol.Pong{}, pkts[0])
}

func TestAuthenticationGate(t *testing.T) {
	r := NewRegistry()
	sink := &captureSink{}
	r.Insert(identity(1), New(identity(1), sink))

	gated := protocol.SendMessage{
		Recipient:  identity(2),
		Ciphertext: []byte("ct"),
	}

	// Gated variants are refused on a fresh session.
	err := r.SendTo(identity(1), gated)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	// Handshake traffic passes the gate.
	require.NoError(t, r.SendTo(identity(1), protocol.Challenge{
		Nonce: bytes.Repeat([]byte{7}, protocol.NonceSize),
	}))

	r.SetAuthenticated(identity(1))
	require.NoError(t, r.SendTo(identity(1), gated))
}

func TestSetAuthenticatedAbsentIsNoop(t *testing.T) {
	r := NewRegistry()
	r.SetAuthenticated(identity(9)) // must not panic
}

func TestRemoveClosesSink(t *testing.T) {
	r := NewRegistry()
	sink := &captureSink{}
	r.Insert(identity(1), New(identity(1), sink))

	r.Remove(identity(1))
	assert.True(t, sink.closed)
	assert.ErrorIs(t, r.SendTo(identity(1), protocol.Pong{}), ErrSessionNotFound)

	// Double removal is harmless.
	r.Remove(identity(1))
}

func TestRenameMovesSession(t *testing.T) {
	r := NewRegistry()
	sink := &captureSink{}
	temp := []byte("127.0.0.1:50123")
	s := New(temp, sink)
	r.Insert(temp, s)

	r.Rename(temp, identity(2))

	assert.ErrorIs(t, r.SendTo(temp, protocol.Pong{}), ErrSessionNotFound)
	require.NoError(t, r.SendTo(identity(2), protocol.Pong{}))
	assert.Equal(t, identity(2), s.Identity())
}

func TestRenameEvictsExistingTarget(t *testing.T) {
	r := NewRegistry()
	oldSink := &captureSink{}
	newSink := &captureSink{}
	r.Insert(identity(2), New(identity(2), oldSink))
	temp := []byte("10.0.0.1:4000")
	r.Insert(temp, New(temp, newSink))

	r.Rename(temp, identity(2))

	assert.True(t, oldSink.closed)
	assert.Equal(t, 1, r.Len())
	require.NoError(t, r.SendTo(identity(2), protocol.Pong{}))
	assert.NotEmpty(t, newSink.packets(t))
}

func TestRemoveOwnedOnlyRemovesMatchingSession(t *testing.T) {
	r := NewRegistry()
	evictedSink := &captureSink{}
	evicted := New(identity(2), evictedSink)
	r.Insert(identity(2), evicted)

	// A newer login takes over the identity.
	survivorSink := &captureSink{}
	survivor := New(identity(2), survivorSink)
	r.Insert(identity(2), survivor)

	// The evicted connection's teardown must not tear down the survivor's
	// registry entry.
	r.RemoveOwned(identity(2), evicted)

	assert.True(t, evictedSink.closed)
	assert.False(t, survivorSink.closed)
	require.NoError(t, r.SendTo(identity(2), protocol.Pong{}))
	assert.NotEmpty(t, survivorSink.packets(t))

	// When the entry is still owned, RemoveOwned removes it.
	r.RemoveOwned(identity(2), survivor)
	assert.True(t, survivorSink.closed)
	assert.ErrorIs(t, r.SendTo(identity(2), protocol.Pong{}), ErrSessionNotFound)
}

func TestRenameAbsentIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Rename([]byte("gone"), identity(3))
	assert.Equal(t, 0, r.Len())
}

func TestConcurrentSendsAndRenames(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		temp := []byte(fmt.Sprintf("192.168.0.%d:1000", i))
		r.Insert(temp, New(temp, &captureSink{}))

		wg.Add(2)
		go func(temp, perm []byte) {
			defer wg.Done()
			r.Rename(temp, perm)
		}(temp, identity(byte(i)))
		go func(temp, perm []byte) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.SendTo(temp, protocol.Pong{})
				_ = r.SendTo(perm, protocol.Pong{})
			}
		}(temp, identity(byte(i)))
	}
	wg.Wait()

	assert.Equal(t, 16, r.Len())
}

func TestEncKeyCache(t *testing.T) {
	r := NewRegistry()

	_, ok := r.EncKeyGet(identity(1))
	assert.False(t, ok)

	r.EncKeyPut(identity(1), []byte("enc-key"))
	got, ok := r.EncKeyGet(identity(1))
	require.True(t, ok)
	assert.Equal(t, []byte("enc-key"), got)
}

func TestEncKeyCacheBounded(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < EncKeyCacheSize+100; i++ {
		key := []byte(fmt.Sprintf("signing-key-%d", i))
		r.EncKeyPut(key, []byte("enc"))
	}

	// The first insertions are the least recently used and must be gone.
	_, ok := r.EncKeyGet([]byte("signing-key-0"))
	assert.False(t, ok)
	assert.LessOrEqual(t, r.encKeys.Len(), EncKeyCacheSize)
}
