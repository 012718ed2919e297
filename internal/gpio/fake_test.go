package gpio

import (
	"errors"
	"testing"
)

var (
	_ Output = (*FakeOutput)(nil)
	_ Input  = (*FakeInput)(nil)
)

func TestFakeOutputSet(t *testing.T) {
	f := NewFakeOutput()

	if f.IsOn() {
		t.Fatal("should start OFF")
	}

	for _, v := range []bool{true, true, false} {
		if err := f.Set(v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if f.IsOn() {
		t.Error("expected OFF after last write")
	}
	if f.WriteCount() != 3 {
		t.Errorf("expected 3 writes, got %d", f.WriteCount())
	}
	if !f.Writes[0] || !f.Writes[1] || f.Writes[2] {
		t.Errorf("unexpected write history: %v", f.Writes)
	}
}

func TestFakeOutputError(t *testing.T) {
	f := NewFakeOutput()
	f.SetError = errors.New("simulated error")

	err := f.Set(true)
	if err == nil || err.Error() != "simulated error" {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.IsOn() {
		t.Error("failed write must not change the value")
	}
	if f.WriteCount() != 0 {
		t.Errorf("expected 0 writes, got %d", f.WriteCount())
	}
}

func TestFakeOutputClose(t *testing.T) {
	f := NewFakeOutput()
	f.Set(true)

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
	if f.IsOn() {
		t.Error("Close should turn the output off")
	}
}

func TestFakeInputRead(t *testing.T) {
	f := NewFakeInput(true)

	v, err := f.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Error("expected true")
	}

	f.Set(false)
	v, _ = f.Read()
	if v {
		t.Error("expected false after Set(false)")
	}
	if f.Reads != 2 {
		t.Errorf("expected 2 reads, got %d", f.Reads)
	}
}

func TestFakeInputError(t *testing.T) {
	f := NewFakeInput(true)
	f.ReadError = errors.New("simulated error")

	v, err := f.Read()
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if v {
		t.Error("failed read must report false")
	}
}

func TestFakeInputClose(t *testing.T) {
	f := NewFakeInput(false)
	if f.Closed {
		t.Error("should not be closed initially")
	}
	f.Close()
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestDefaultPins(t *testing.T) {
	if DefaultPins.Heater != 23 || DefaultPins.Water != 24 || DefaultPins.Pump != 25 {
		t.Errorf("unexpected default pins: %+v", DefaultPins)
	}
}

func TestFakeOutputReleaseLevel(t *testing.T) {
	tests := []struct {
		name      string
		activeLow bool
		onLevel   int
		idle      int
	}{
		{"active high heater", false, 1, 0},
		{"active low pump", true, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFakeOutput()
			f.ActiveLow = tt.activeLow
			if err := f.Set(true); err != nil {
				t.Fatal(err)
			}
			if got := f.Level(); got != tt.onLevel {
				t.Errorf("level while on: got %d, want %d", got, tt.onLevel)
			}
			if err := f.Close(); err != nil {
				t.Fatal(err)
			}
			if f.IsOn() {
				t.Error("expected logical OFF after close")
			}
			if got := f.Level(); got != tt.idle {
				t.Errorf("level after close: got %d, want %d (relay de-energised)", got, tt.idle)
			}
		})
	}
}
