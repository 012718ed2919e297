package gpio

import "sync"

// FakeOutput is a test double that records commanded values.
type FakeOutput struct {
	mu sync.Mutex

	// On is the last successfully written value.
	On bool

	// Writes records every successful Set call in order.
	Writes []bool

	// SetError, if set, will be returned by Set() and the value not applied.
	SetError error

	// Closed tracks if Close was called
	Closed bool

	// ActiveLow inverts the physical level reported by Level.
	ActiveLow bool
}

// NewFakeOutput creates a FakeOutput in the OFF state.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the value.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.On = on
	f.Writes = append(f.Writes, on)
	return nil
}

// Close turns the output off and marks it closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.On = false
	f.Closed = true
	return nil
}

// Level returns the physical pin level: the commanded value while open and
// the inactive level once released.
func (f *FakeOutput) Level() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed {
		return idleLevel(f.ActiveLow)
	}
	if f.On != f.ActiveLow {
		return 1
	}
	return 0
}

// IsOn returns the current value.
func (f *FakeOutput) IsOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.On
}

// WriteCount returns the number of successful writes.
func (f *FakeOutput) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Writes)
}

// FakeInput is a test double returning a settable value.
type FakeInput struct {
	mu sync.Mutex

	// Value is returned by Read().
	Value bool

	// ReadError, if set, will be returned by Read()
	ReadError error

	// Reads counts calls to Read.
	Reads int

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeInput creates a FakeInput returning value.
func NewFakeInput(value bool) *FakeInput {
	return &FakeInput{Value: value}
}

// Read returns the configured value.
func (f *FakeInput) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	return f.Value, nil
}

// Set changes the value returned by subsequent reads.
func (f *FakeInput) Set(v bool) {
	f.mu.Lock()
	f.Value = v
	f.mu.Unlock()
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
