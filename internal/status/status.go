// Package status provides the controller status snapshot, its file-based
// producer and consumer, and a thread-safe tracker read by the HTTP server
// and the MQTT publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/sous-vide/internal/logic"
)

// NetworkInfo contains network state, as exported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	WindowMs        int64
	AlarmMs         int64
	CommandCheckMs  int64
	StatusFile      string
	Broker          string
	HTTPAddr        string
	WatchCommands   bool
	MaxTuneAttempts int
}

// View is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type View struct {
	Status        Snapshot
	Heater        logic.State
	OnTime        time.Duration
	Manual        bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (v View) Uptime() time.Duration {
	return v.Now.Sub(v.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	view View
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		view: View{
			Status:    Unknown(),
			Heater:    logic.StateOff,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetStatus records the last published status snapshot.
func (t *Tracker) SetStatus(s Snapshot) {
	t.mu.Lock()
	t.view.Status = s
	t.mu.Unlock()
}

// SetOutput records the heater state and the current window's on time.
func (t *Tracker) SetOutput(heater logic.State, onTime time.Duration, manual bool) {
	t.mu.Lock()
	t.view.Heater = heater
	t.view.OnTime = onTime
	t.view.Manual = manual
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.view.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.view.Network = info
	t.mu.Unlock()
}

// View returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) View() View {
	t.mu.RLock()
	v := t.view
	t.mu.RUnlock()
	v.Now = time.Now()
	return v
}
