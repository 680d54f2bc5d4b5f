package linkdriver

import "sync"

// FakePair is a pair of in-memory Drivers wired to each other's inbox,
// standing in for a physical Ethernet segment in tests (SPEC_FULL.md's
// Test tooling section: tests never need CAP_NET_RAW).
type FakePair struct {
	Server *FakeDriver
	Client *FakeDriver
}

// NewFakePair builds two connected fake drivers with the given
// hardware addresses.
func NewFakePair(serverMAC, clientMAC [6]byte) *FakePair {
	toServer := make(chan []byte, 64)
	toClient := make(chan []byte, 64)
	return &FakePair{
		Server: &FakeDriver{mac: serverMAC, inbox: toServer, outbox: toClient},
		Client: &FakeDriver{mac: clientMAC, inbox: toClient, outbox: toServer},
	}
}

// FakeDriver is a Driver backed by Go channels instead of a socket.
type FakeDriver struct {
	mac    [6]byte
	inbox  chan []byte
	outbox chan []byte

	mu     sync.Mutex
	closed bool
}

var _ Driver = (*FakeDriver)(nil)

func (f *FakeDriver) LocalMAC() [6]byte { return f.mac }

func (f *FakeDriver) Recv(buf []byte) (int, error) {
	frame, ok := <-f.inbox
	if !ok {
		return 0, ErrTimeout
	}
	n := copy(buf, frame)
	return n, nil
}

func (f *FakeDriver) Send(buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrTimeout
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.outbox <- cp
	return nil
}

func (f *FakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.inbox)
	return nil
}
