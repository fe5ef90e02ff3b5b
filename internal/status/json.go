package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/valve-supervisor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Valve         string       `json:"valve"`
	Wiring        string       `json:"wiring"`
	Trigger       string       `json:"trigger"`
	Indicator     string       `json:"indicator"`
	Exhausted     bool         `json:"exhausted"`
	Counters      CountersJSON `json:"counters"`
	Totals        TotalsJSON   `json:"totals"`
	LastEvent     *EventJSON   `json:"last_event,omitempty"`
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

// CountersJSON is the JSON representation of the episode counters.
type CountersJSON struct {
	FakeClose     int `json:"fake_close"`
	CloseAttempts int `json:"close_attempts"`
}

// TotalsJSON is the JSON representation of activity since startup.
type TotalsJSON struct {
	Passes   int64 `json:"passes"`
	Episodes int   `json:"episodes"`
	Breaks   int   `json:"breaks"`
	Pulses   int   `json:"pulses"`
	GiveUps  int   `json:"give_ups"`
}

// EventJSON is the JSON representation of the last supervisor event.
type EventJSON struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Attempt   int    `json:"attempt,omitempty"`
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
	Backend     string         `json:"backend"`
	Chip        string         `json:"chip,omitempty"`
	Pins        map[string]int `json:"pins"`
	HeartbeatMs int64          `json:"heartbeat_ms"`
	Broker      string         `json:"broker"`
	HTTPAddr    string         `json:"http_addr"`
}

// ValveString returns OPEN, CLOSED or UNKNOWN (before the first reading).
func ValveString(s logic.State) string {
	switch {
	case !s.ValveKnown:
		return "UNKNOWN"
	case s.ValveOpen:
		return "OPEN"
	default:
		return "CLOSED"
	}
}

// WiringString returns BROKEN or OK.
func WiringString(s logic.State) string {
	if s.Broken {
		return "BROKEN"
	}
	return "OK"
}

// TriggerString returns ASSERTED or NORMAL.
func TriggerString(s logic.State) string {
	if s.TriggerAsserted {
		return "ASSERTED"
	}
	return "NORMAL"
}

func buildInner(snap Snapshot) StatusInner {
	st := snap.Supervisor
	indicator := string(st.Indicator)
	if indicator == "" {
		indicator = "UNKNOWN"
	}

	inner := StatusInner{
		Valve:     ValveString(st),
		Wiring:    WiringString(st),
		Trigger:   TriggerString(st),
		Indicator: indicator,
		Exhausted: st.Exhausted,
		Counters: CountersJSON{
			FakeClose:     st.Counters.FakeClose,
			CloseAttempts: st.Counters.CloseAttempts,
		},
		Totals: TotalsJSON{
			Passes:   st.Totals.Passes,
			Episodes: st.Totals.Episodes,
			Breaks:   st.Totals.Breaks,
			Pulses:   st.Totals.Pulses,
			GiveUps:  st.Totals.GiveUps,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Backend:     snap.Config.Backend,
			Chip:        snap.Config.Chip,
			Pins:        snap.Config.Pins,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if e := snap.LastEvent; e != nil {
		inner.LastEvent = &EventJSON{
			Type:      string(e.Type),
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			Attempt:   e.Attempt,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
