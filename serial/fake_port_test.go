package serial

import (
	"sync"
	"time"
)

// fakePort replays scripted responses. Bytes queued with respond become
// readable once a command has been written, mimicking the request/reply
// discipline of the meter.
type fakePort struct {
	mu         sync.Mutex
	rx         []byte
	written    [][]byte
	replies    map[string]string
	timeouts   []time.Duration
	configured int
	flushedIn  int
	flushedOut int
	closed     bool

	configErr   error
	writeErr    error
	writeShort  bool
	readErr     error
	readTimeout time.Duration
}

func newFakePort() *fakePort {
	return &fakePort{replies: make(map[string]string)}
}

// reply answers cmd (without CRLF) with resp verbatim.
func (f *fakePort) reply(cmd, resp string) *fakePort {
	f.replies[cmd] = resp
	return f
}

// feed makes data readable immediately.
func (f *fakePort) feed(data string) *fakePort {
	f.rx = append(f.rx, data...)
	return f
}

func (f *fakePort) Configure(Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configErr != nil {
		return f.configErr
	}
	f.configured++
	return nil
}

func (f *fakePort) SetReadTimeout(d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readTimeout = d
	f.timeouts = append(f.timeouts, d)
	return nil
}

func (f *fakePort) Read(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrPortClosed
	}
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.rx) == 0 {
		return 0, ErrReadTimeout
	}
	n := copy(buf, f.rx)
	f.rx = f.rx[n:]
	return n, nil
}

func (f *fakePort) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrPortClosed
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.writeShort {
		return len(data) - 1, nil
	}
	f.written = append(f.written, append([]byte(nil), data...))
	cmd := Command(data).String()
	if resp, ok := f.replies[cmd]; ok {
		f.rx = append(f.rx, resp...)
	}
	return len(data), nil
}

func (f *fakePort) Drain() error { return nil }

func (f *fakePort) FlushInput() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushedIn++
	f.rx = nil
	return nil
}

func (f *fakePort) FlushOutput() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushedOut++
	return nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrPortClosed
	}
	f.closed = true
	return nil
}

func (f *fakePort) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeBus maps device paths to fake ports.
type fakeBus struct {
	ports   map[string]*fakePort
	opened  []string
	openErr map[string]error
}

func newFakeBus() *fakeBus {
	return &fakeBus{ports: make(map[string]*fakePort), openErr: make(map[string]error)}
}

func (b *fakeBus) add(path string, p *fakePort) *fakePort {
	b.ports[path] = p
	return p
}

func (b *fakeBus) open(path string, _ Config) (Port, error) {
	b.opened = append(b.opened, path)
	if err := b.openErr[path]; err != nil {
		return nil, err
	}
	p, ok := b.ports[path]
	if !ok {
		return nil, ErrNoSuchDevice
	}
	return p, nil
}

func testOptions(b *fakeBus) []TransportOption {
	return []TransportOption{WithOpener(b.open), WithSettleDelay(0)}
}
