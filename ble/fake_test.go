package ble

import (
	"context"
	"sync"
)

// fakeConn is an in-memory Connection. onWrite runs inside Write and may
// answer through notify.
type fakeConn struct {
	mu           sync.Mutex
	writes       [][]byte
	writeErrs    []error
	subs         map[string]func([]byte)
	subErrs      map[string]error
	cleared      int
	disconnected int
	onWrite      func(data []byte)

	done     chan struct{}
	doneOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		subs:    make(map[string]func([]byte)),
		subErrs: make(map[string]error),
		done:    make(chan struct{}),
	}
}

func (f *fakeConn) Address() string { return "AA:BB:CC:DD:EE:FF" }

func (f *fakeConn) Write(ctx context.Context, char string, data []byte, withResponse bool) error {
	f.mu.Lock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	var err error
	if len(f.writeErrs) > 0 {
		err, f.writeErrs = f.writeErrs[0], f.writeErrs[1:]
	}
	onWrite := f.onWrite
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if onWrite != nil {
		onWrite(data)
	}
	return nil
}

func (f *fakeConn) Subscribe(char string, fn func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subErrs[char]; err != nil {
		return err
	}
	f.subs[char] = fn
	return nil
}

func (f *fakeConn) notify(char string, data []byte) {
	f.mu.Lock()
	fn := f.subs[char]
	f.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func (f *fakeConn) Disconnect() error {
	f.mu.Lock()
	f.disconnected++
	f.mu.Unlock()
	f.drop()
	return nil
}

func (f *fakeConn) drop() {
	f.doneOnce.Do(func() { close(f.done) })
}

func (f *fakeConn) ClearCache() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeConn) Done() <-chan struct{} { return f.done }

func (f *fakeConn) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeConn) counts() (cleared, disconnected int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared, f.disconnected
}
