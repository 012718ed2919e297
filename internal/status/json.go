package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for daemon status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Controller    Snapshot     `json:"controller"`
	Heater        string       `json:"heater"`
	OnTimeMs      int64        `json:"on_time_ms"`
	Manual        bool         `json:"manual"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	WindowMs        int64  `json:"window_ms"`
	AlarmMs         int64  `json:"alarm_ms"`
	CommandCheckMs  int64  `json:"command_check_ms"`
	StatusFile      string `json:"status_file"`
	Broker          string `json:"broker,omitempty"`
	HTTPAddr        string `json:"http_addr"`
	WatchCommands   bool   `json:"watch_commands"`
	MaxTuneAttempts int    `json:"max_tune_attempts"`
}

func buildInner(v View) StatusInner {
	heater := string(v.Heater)
	if heater == "" {
		heater = "UNKNOWN"
	}
	inner := StatusInner{
		Controller:    v.Status,
		Heater:        heater,
		OnTimeMs:      v.OnTime.Milliseconds(),
		Manual:        v.Manual,
		UptimeSeconds: int64(v.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     v.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     v.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: v.MQTTConnected, Broker: v.Config.Broker},
		Config: ConfigJSON{
			WindowMs:        v.Config.WindowMs,
			AlarmMs:         v.Config.AlarmMs,
			CommandCheckMs:  v.Config.CommandCheckMs,
			StatusFile:      v.Config.StatusFile,
			Broker:          v.Config.Broker,
			HTTPAddr:        v.Config.HTTPAddr,
			WatchCommands:   v.Config.WatchCommands,
			MaxTuneAttempts: v.Config.MaxTuneAttempts,
		},
	}
	if v.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       v.Network.Type,
			IP:         v.Network.IP,
			Status:     v.Network.Status,
			Gateway:    v.Network.Gateway,
			WifiStatus: v.Network.WifiStatus,
			SSID:       v.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(v View) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(v)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(v View, event, reason string) []byte {
	inner := buildInner(v)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
