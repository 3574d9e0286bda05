// internal/service/serial_service_test.go
package service

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"boardtester/internal/config"
	"boardtester/internal/model"
	"boardtester/internal/protocol"
)

// fakePort is an in-memory protocol.Port. Reads block briefly and then
// return (0, nil) like a hardware port with a read timeout.
type fakePort struct {
	chunks chan []byte
	errs   chan error

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newFakePort() *fakePort {
	return &fakePort{
		chunks: make(chan []byte, 16),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

func (p *fakePort) feed(s string) { p.chunks <- []byte(s) }

func (p *fakePort) fail(err error) { p.errs <- err }

func (p *fakePort) Read(buf []byte) (int, error) {
	select {
	case <-p.done:
		return 0, io.ErrClosedPipe
	case err := <-p.errs:
		return 0, err
	case chunk := <-p.chunks:
		return copy(buf, chunk), nil
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	return nil
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeOpener struct {
	mu    sync.Mutex
	port  protocol.Port
	err   error
	opens int
}

func (o *fakeOpener) Open(device string, baudRate int, readTimeout time.Duration) (protocol.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	return o.port, nil
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func serialTestConfig() *config.SerialConfig {
	return &config.SerialConfig{
		Device:      "/dev/fake0",
		BaudRate:    115200,
		ReadTimeout: 50 * time.Millisecond,
	}
}

func waitEvent(t *testing.T, events <-chan model.Event) model.Event {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return model.Event{}
	}
}

func assertNoEvent(t *testing.T, events <-chan model.Event) {
	t.Helper()
	select {
	case event := <-events:
		t.Fatalf("unexpected event %s", event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSerialServiceOpenFailure(t *testing.T) {
	opener := &fakeOpener{err: errors.New("no such device")}
	svc := NewSerialService(serialTestConfig(), opener, zap.NewNop())
	events := make(chan model.Event, 16)

	svc.Start(7, events)

	event := waitEvent(t, events)
	assert.Equal(t, model.EventSerialError, event.Type)
	assert.Equal(t, uint64(7), event.Generation)

	var connErr *model.ConnectionError
	require.ErrorAs(t, event.Err, &connErr)
	assert.Equal(t, "/dev/fake0", connErr.Device)
}

func TestSerialServiceConnectsAndSplitsLines(t *testing.T) {
	port := newFakePort()
	opener := &fakeOpener{port: port}
	svc := NewSerialService(serialTestConfig(), opener, zap.NewNop())
	events := make(chan model.Event, 16)

	svc.Start(1, events)
	defer svc.Stop()

	event := waitEvent(t, events)
	assert.Equal(t, model.EventSerialConnected, event.Type)
	assert.Equal(t, uint64(1), event.Generation)

	// Lines arrive split across reads and with CRLF endings
	port.feed("hel")
	port.feed("lo\r\nwor")
	port.feed("ld\n\n")

	event = waitEvent(t, events)
	assert.Equal(t, model.EventSerialLine, event.Type)
	assert.Equal(t, "hello", event.Line)

	event = waitEvent(t, events)
	assert.Equal(t, model.EventSerialLine, event.Type)
	assert.Equal(t, "world", event.Line)

	// The trailing blank line is skipped
	assertNoEvent(t, events)
}

func TestSerialServiceStopIsSilent(t *testing.T) {
	port := newFakePort()
	opener := &fakeOpener{port: port}
	svc := NewSerialService(serialTestConfig(), opener, zap.NewNop())
	events := make(chan model.Event, 16)

	svc.Start(1, events)
	event := waitEvent(t, events)
	require.Equal(t, model.EventSerialConnected, event.Type)

	svc.Stop()

	// The reader exits on the closed port without reporting an error
	assertNoEvent(t, events)
	assert.True(t, port.isClosed())

	// Repeated stop is a no-op
	svc.Stop()
}

func TestSerialServiceReadErrorReported(t *testing.T) {
	port := newFakePort()
	opener := &fakeOpener{port: port}
	svc := NewSerialService(serialTestConfig(), opener, zap.NewNop())
	events := make(chan model.Event, 16)

	svc.Start(3, events)
	event := waitEvent(t, events)
	require.Equal(t, model.EventSerialConnected, event.Type)

	port.fail(errors.New("device unplugged"))

	event = waitEvent(t, events)
	assert.Equal(t, model.EventSerialError, event.Type)
	assert.Equal(t, uint64(3), event.Generation)

	var connErr *model.ConnectionError
	assert.ErrorAs(t, event.Err, &connErr)
}

func TestSerialServiceSecondStartIgnored(t *testing.T) {
	port := newFakePort()
	opener := &fakeOpener{port: port}
	svc := NewSerialService(serialTestConfig(), opener, zap.NewNop())
	events := make(chan model.Event, 16)

	svc.Start(1, events)
	defer svc.Stop()
	waitEvent(t, events)

	svc.Start(2, events)
	assertNoEvent(t, events)
	assert.Equal(t, 1, opener.openCount())
}
