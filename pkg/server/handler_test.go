package server

import (
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WILLJB02/Networked-Threaded-Chat-System/pkg/protocol"
)

func TestMain(m *testing.M) {
	chatLog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// dialHandler starts a handler over one end of a pipe and returns the peer
// end with a decoder attached.
func dialHandler(t *testing.T, reg *Registry, secret Secret) (net.Conn, *protocol.Decoder) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	t.Cleanup(func() { clientSide.Close() })

	go NewHandler(reg, secret, NewSafeConn(serverSide)).Run()

	require.NoError(t, clientSide.SetDeadline(time.Now().Add(5*time.Second)))
	return clientSide, protocol.NewDecoder(clientSide)
}

func sendLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)
}

func expectLine(t *testing.T, dec *protocol.Decoder, tag, payload string) {
	t.Helper()
	msg, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, protocol.Message{Tag: tag, Payload: payload}, msg)
}

// handshake drives a connection through authentication and name
// negotiation, consuming the resulting ENTER broadcast.
func handshake(t *testing.T, conn net.Conn, dec *protocol.Decoder, secret, name string) {
	t.Helper()
	expectLine(t, dec, protocol.TagAuth, "")
	sendLine(t, conn, "AUTH:"+secret)
	expectLine(t, dec, protocol.TagOK, "")
	expectLine(t, dec, protocol.TagWho, "")
	sendLine(t, conn, "NAME:"+name)
	expectLine(t, dec, protocol.TagOK, "")
	expectLine(t, dec, protocol.TagEnter, name)
}

func TestHandlerAuthThenNameNegotiation(t *testing.T) {
	reg := NewRegistry()
	conn, dec := dialHandler(t, reg, NewSecret("hunter2"))

	handshake(t, conn, dec, "hunter2", "bob")
	assert.Equal(t, []string{"bob"}, reg.Names())

	_, totals := reg.Snapshot()
	assert.Equal(t, uint64(1), totals.Auth)
	assert.Equal(t, uint64(1), totals.Name)
}

func TestHandlerAuthMismatchDropsConnection(t *testing.T) {
	reg := NewRegistry()
	conn, dec := dialHandler(t, reg, NewSecret("hunter2"))

	expectLine(t, dec, protocol.TagAuth, "")
	sendLine(t, conn, "AUTH:wrong")

	_, err := dec.Decode()
	assert.ErrorIs(t, err, protocol.ErrStreamClosed)
	assert.Equal(t, 0, reg.Count())
}

func TestHandlerIgnoresLinesUntilAuth(t *testing.T) {
	reg := NewRegistry()
	conn, dec := dialHandler(t, reg, NewSecret("s"))

	expectLine(t, dec, protocol.TagAuth, "")
	sendLine(t, conn, "HELLO:")
	sendLine(t, conn, "SAY:too early")
	sendLine(t, conn, "AUTH:s")
	expectLine(t, dec, protocol.TagOK, "")
}

func TestHandlerRejectsEmptyName(t *testing.T) {
	reg := NewRegistry()
	conn, dec := dialHandler(t, reg, NewSecret("s"))

	expectLine(t, dec, protocol.TagAuth, "")
	sendLine(t, conn, "AUTH:s")
	expectLine(t, dec, protocol.TagOK, "")

	expectLine(t, dec, protocol.TagWho, "")
	sendLine(t, conn, "NAME:")
	expectLine(t, dec, protocol.TagNameTaken, "")
	expectLine(t, dec, protocol.TagWho, "")

	sendLine(t, conn, "NAME:bob")
	expectLine(t, dec, protocol.TagOK, "")
	expectLine(t, dec, protocol.TagEnter, "bob")

	_, totals := reg.Snapshot()
	assert.Equal(t, uint64(2), totals.Name)
}

func TestHandlerRejectsTakenName(t *testing.T) {
	reg := NewRegistry()
	alice, _ := newTestClient("alice")
	require.NoError(t, reg.Insert(alice))

	conn, dec := dialHandler(t, reg, NewSecret("s"))
	expectLine(t, dec, protocol.TagAuth, "")
	sendLine(t, conn, "AUTH:s")
	expectLine(t, dec, protocol.TagOK, "")

	expectLine(t, dec, protocol.TagWho, "")
	sendLine(t, conn, "NAME:alice")
	expectLine(t, dec, protocol.TagNameTaken, "")
	expectLine(t, dec, protocol.TagWho, "")
	sendLine(t, conn, "NAME:alice0")
	expectLine(t, dec, protocol.TagOK, "")
	expectLine(t, dec, protocol.TagEnter, "alice0")

	assert.Equal(t, []string{"alice", "alice0"}, reg.Names())
}

func TestHandlerSayBroadcasts(t *testing.T) {
	reg := NewRegistry()
	bob, bobConn := newTestClient("bob")
	require.NoError(t, reg.Insert(bob))

	conn, dec := dialHandler(t, reg, NewSecret("s"))
	handshake(t, conn, dec, "s", "alice")

	sendLine(t, conn, "SAY:hi")
	expectLine(t, dec, protocol.TagMsg, "alice:hi")

	assert.Contains(t, bobConn.lines(), "MSG:alice:hi")

	stats, totals := reg.Snapshot()
	assert.Equal(t, uint64(1), totals.Say)
	assert.Equal(t, uint64(1), stats[0].Say) // alice sorts first
}

func TestHandlerSaySanitizesControlCharacters(t *testing.T) {
	reg := NewRegistry()
	conn, dec := dialHandler(t, reg, NewSecret("s"))
	handshake(t, conn, dec, "s", "alice")

	sendLine(t, conn, "SAY:hi\tthere")
	expectLine(t, dec, protocol.TagMsg, "alice:hi?there")
}

func TestHandlerSayKeepsColonsInText(t *testing.T) {
	reg := NewRegistry()
	conn, dec := dialHandler(t, reg, NewSecret("s"))
	handshake(t, conn, dec, "s", "alice")

	sendLine(t, conn, "SAY:look: a colon")
	expectLine(t, dec, protocol.TagMsg, "alice:look: a colon")
}

func TestHandlerListResponse(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"carol", "bob"} {
		c, _ := newTestClient(name)
		require.NoError(t, reg.Insert(c))
	}

	conn, dec := dialHandler(t, reg, NewSecret("s"))
	handshake(t, conn, dec, "s", "alice")

	sendLine(t, conn, "LIST:")
	expectLine(t, dec, protocol.TagList, "alice,bob,carol")

	_, totals := reg.Snapshot()
	assert.Equal(t, uint64(1), totals.List)
}

func TestHandlerKickDeliversNotification(t *testing.T) {
	reg := NewRegistry()
	bob, bobConn := newTestClient("bob")
	require.NoError(t, reg.Insert(bob))

	conn, dec := dialHandler(t, reg, NewSecret("s"))
	handshake(t, conn, dec, "s", "alice")

	sendLine(t, conn, "KICK:bob")

	// The target is notified but not removed; its own handler performs the
	// cleanup when it observes the effect.
	require.Eventually(t, func() bool {
		for _, l := range bobConn.lines() {
			if l == "KICK:" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, reg.Count())

	_, totals := reg.Snapshot()
	assert.Equal(t, uint64(1), totals.Kick)
}

func TestHandlerKickUnknownTargetIsNoop(t *testing.T) {
	reg := NewRegistry()
	conn, dec := dialHandler(t, reg, NewSecret("s"))
	handshake(t, conn, dec, "s", "alice")

	sendLine(t, conn, "KICK:ghost")

	// Handler keeps running; the next command still works.
	sendLine(t, conn, "SAY:still here")
	expectLine(t, dec, protocol.TagMsg, "alice:still here")

	_, totals := reg.Snapshot()
	assert.Equal(t, uint64(1), totals.Kick)
}

func TestHandlerLeaveRemovesAndBroadcasts(t *testing.T) {
	reg := NewRegistry()
	bob, bobConn := newTestClient("bob")
	require.NoError(t, reg.Insert(bob))

	conn, dec := dialHandler(t, reg, NewSecret("s"))
	handshake(t, conn, dec, "s", "alice")

	sendLine(t, conn, "LEAVE:")

	require.Eventually(t, func() bool { return reg.Count() == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, l := range bobConn.lines() {
			if l == "LEAVE:alice" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	// The departed client's stream is closed by the removal.
	_, err := dec.Decode()
	assert.ErrorIs(t, err, protocol.ErrStreamClosed)

	_, totals := reg.Snapshot()
	assert.Equal(t, uint64(1), totals.Leave)
}

func TestHandlerDisconnectCleansUpWithoutLeaveCount(t *testing.T) {
	reg := NewRegistry()
	bob, bobConn := newTestClient("bob")
	require.NoError(t, reg.Insert(bob))

	conn, dec := dialHandler(t, reg, NewSecret("s"))
	handshake(t, conn, dec, "s", "alice")

	conn.Close()

	require.Eventually(t, func() bool { return reg.Count() == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, l := range bobConn.lines() {
			if l == "LEAVE:alice" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	_, totals := reg.Snapshot()
	assert.Equal(t, uint64(0), totals.Leave)
	_ = dec
}

func TestHandlerIgnoresMalformedLines(t *testing.T) {
	reg := NewRegistry()
	conn, dec := dialHandler(t, reg, NewSecret("s"))
	handshake(t, conn, dec, "s", "alice")

	sendLine(t, conn, "")
	sendLine(t, conn, "NONSENSE")
	sendLine(t, conn, "BOGUS:payload")
	sendLine(t, conn, "LEAVE:not-empty")

	sendLine(t, conn, "SAY:after noise")
	expectLine(t, dec, protocol.TagMsg, "alice:after noise")
	assert.Equal(t, 1, reg.Count())
}

func TestHandlerIgnoresBareCommandWords(t *testing.T) {
	reg := NewRegistry()
	conn, dec := dialHandler(t, reg, NewSecret("s"))

	// A command word without its colon is not a message in any phase: not
	// while waiting for AUTH or NAME, and not in the chat loop.
	expectLine(t, dec, protocol.TagAuth, "")
	sendLine(t, conn, "AUTH")
	sendLine(t, conn, "AUTH:s")
	expectLine(t, dec, protocol.TagOK, "")

	expectLine(t, dec, protocol.TagWho, "")
	sendLine(t, conn, "NAME")
	sendLine(t, conn, "NAME:alice")
	expectLine(t, dec, protocol.TagOK, "")
	expectLine(t, dec, protocol.TagEnter, "alice")

	sendLine(t, conn, "LEAVE")
	sendLine(t, conn, "LIST")
	sendLine(t, conn, "KICK")

	sendLine(t, conn, "SAY:still here")
	expectLine(t, dec, protocol.TagMsg, "alice:still here")
	assert.Equal(t, 1, reg.Count())

	_, totals := reg.Snapshot()
	assert.Equal(t, uint64(1), totals.Auth)
	assert.Equal(t, uint64(1), totals.Name)
	assert.Equal(t, uint64(0), totals.Leave)
	assert.Equal(t, uint64(0), totals.List)
	assert.Equal(t, uint64(0), totals.Kick)
}

func TestHandlerKickEmptyTargetStillCounted(t *testing.T) {
	reg := NewRegistry()
	conn, dec := dialHandler(t, reg, NewSecret("s"))
	handshake(t, conn, dec, "s", "alice")

	// Nobody can register under the empty name, so the lookup fails, but
	// the command itself still counts.
	sendLine(t, conn, "KICK:")

	sendLine(t, conn, "SAY:still here")
	expectLine(t, dec, protocol.TagMsg, "alice:still here")
	assert.Equal(t, 1, reg.Count())

	stats, totals := reg.Snapshot()
	assert.Equal(t, uint64(1), totals.Kick)
	assert.Equal(t, uint64(1), stats[0].Kick)
}

func TestHandlerConcurrentNameRace(t *testing.T) {
	reg := NewRegistry()
	secret := NewSecret("s")

	const contenders = 8
	var wg sync.WaitGroup
	wins := make(chan string, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clientSide, serverSide := net.Pipe()
			defer clientSide.Close()
			go NewHandler(reg, secret, NewSafeConn(serverSide)).Run()
			clientSide.SetDeadline(time.Now().Add(5 * time.Second))
			dec := protocol.NewDecoder(clientSide)

			expectLine(t, dec, protocol.TagAuth, "")
			sendLine(t, clientSide, "AUTH:s")
			expectLine(t, dec, protocol.TagOK, "")
			expectLine(t, dec, protocol.TagWho, "")
			sendLine(t, clientSide, "NAME:alice")

			for {
				msg, err := dec.Decode()
				if err != nil {
					return
				}
				switch msg.Tag {
				case protocol.TagOK:
					wins <- "alice"
					// Stay connected so the registry entry survives the
					// assertion below.
					time.Sleep(200 * time.Millisecond)
					return
				case protocol.TagNameTaken:
					// Loser: drop the connection without registering.
					return
				}
			}
		}()
	}

	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}
