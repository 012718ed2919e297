package status

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/sweeney/sous-vide/internal/filestore"
)

// Snapshot is the controller status shared through the status file.
//
// Every field is optional so that a consumer can represent "unknown". The
// key set is stable and written in sorted order so UI collaborators can rely
// on it. A Snapshot is a value; it is rebuilt on every refresh.
type Snapshot struct {
	PIDd           *float64 `json:"PID_d"`
	PIDi           *float64 `json:"PID_i"`
	PIDp           *float64 `json:"PID_p"`
	Error          bool     `json:"error"`
	WaterDetected  *bool    `json:"in_water"`
	Running        *bool    `json:"running"`
	Setpoint       *float64 `json:"setpoint"`
	Temperature    *float64 `json:"temp"`
	TimeAtSetpoint *float64 `json:"time_at_setpoint"`
}

// Unknown is the only legal all-unknown snapshot: every field unset and
// Error raised.
func Unknown() Snapshot {
	return Snapshot{Error: true}
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Marshal encodes the snapshot as it appears in the status file.
func (s Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Parse decodes a status file. Keys missing from the document are left
// unknown.
func Parse(data []byte) (Snapshot, error) {
	if len(data) == 0 {
		return Snapshot{}, fmt.Errorf("empty status document")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Snapshot{}, fmt.Errorf("parse status: %w", err)
	}
	if fields == nil {
		return Snapshot{}, fmt.Errorf("parse status: null document")
	}
	known := false
	for _, k := range statusKeys {
		if _, ok := fields[k]; ok {
			known = true
			break
		}
	}
	if !known {
		return Snapshot{}, fmt.Errorf("parse status: no status keys")
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("parse status: %w", err)
	}
	return s, nil
}

// statusKeys are the JSON keys of Snapshot.
var statusKeys = []string{"PID_d", "PID_i", "PID_p", "error", "in_water", "running", "setpoint", "temp", "time_at_setpoint"}

// Writer is the producer side: it publishes snapshots to the status file.
type Writer struct {
	store   *filestore.Store
	path    string
	owner   *filestore.Owner
	tracker *Tracker
}

// NewWriter creates a Writer. tracker may be nil.
func NewWriter(store *filestore.Store, path string, owner *filestore.Owner, tracker *Tracker) *Writer {
	return &Writer{store: store, path: path, owner: owner, tracker: tracker}
}

// Write atomically replaces the status file with snap. The tracker is only
// updated once the file is in place.
func (w *Writer) Write(snap Snapshot) error {
	data, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := w.store.Write(w.path, data, w.owner); err != nil {
		return err
	}
	if w.tracker != nil {
		w.tracker.SetStatus(snap)
	}
	return nil
}

// Path returns the status file location.
func (w *Writer) Path() string { return w.path }

// Reader is the consumer side used by UI collaborators.
type Reader struct {
	path string
}

// NewReader creates a Reader for the status file at path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// Refresh re-reads the status file. It never fails: when the file cannot be
// read or parsed the result is Unknown().
func (r *Reader) Refresh() Snapshot {
	data, err := os.ReadFile(r.path)
	if err != nil {
		slog.Warn("status: cannot read status file", "path", r.path, "error", err)
		return Unknown()
	}
	snap, err := Parse(data)
	if err != nil {
		slog.Warn("status: cannot parse status file", "path", r.path, "error", err)
		return Unknown()
	}
	return snap
}
