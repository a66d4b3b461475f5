package server

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporterFormat(t *testing.T) {
	reg := NewRegistry()

	alice, _ := newTestClient("alice")
	bob, _ := newTestClient("bob")
	require.NoError(t, reg.Insert(bob))
	require.NoError(t, reg.Insert(alice))

	reg.BumpAuth()
	reg.BumpAuth()
	reg.BumpName()
	reg.BumpName()
	reg.BumpSay(alice)
	reg.BumpSay(alice)
	reg.BumpList(alice)
	reg.BumpKick(bob)

	var buf bytes.Buffer
	NewReporter(reg, &buf).Report()

	want := "@CLIENTS@\n" +
		"alice:SAY:2:KICK:0:LIST:1\n" +
		"bob:SAY:0:KICK:1:LIST:0\n" +
		"@SERVER@\n" +
		"server:AUTH:2:NAME:2:SAY:2:KICK:1:LIST:1:LEAVE:0\n"
	assert.Equal(t, want, buf.String())
}

func TestReporterEmptyRegistry(t *testing.T) {
	reg := NewRegistry()

	var buf bytes.Buffer
	NewReporter(reg, &buf).Report()

	want := "@CLIENTS@\n" +
		"@SERVER@\n" +
		"server:AUTH:0:NAME:0:SAY:0:KICK:0:LIST:0:LEAVE:0\n"
	assert.Equal(t, want, buf.String())
}

func TestReporterRunRearms(t *testing.T) {
	reg := NewRegistry()

	var buf syncBuffer
	trigger := make(chan struct{})
	shutdown := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		NewReporter(reg, &buf).Run(trigger, shutdown)
	}()

	trigger <- struct{}{}
	trigger <- struct{}{}
	close(shutdown)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reporter did not stop on shutdown")
	}

	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("@SERVER@")))
}

// syncBuffer guards a bytes.Buffer for cross-goroutine use in tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
