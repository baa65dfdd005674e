// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Flat koanf keys; every key can be set from the environment as PSS_<KEY>.
// - New() returns a Config populated with defaults; Load layers file and env on top.
package config

import (
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the operator HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// UDPBind is the IPv4 address the datagram receiver binds to.
	UDPBind string `koanf:"udp_bind"`

	// UDPInterface, when set, overrides UDPBind with the first IPv4 address of the named interface.
	UDPInterface string `koanf:"udp_interface"`

	// UDPPort is the PSS datagram port. 0 picks an ephemeral port.
	UDPPort int `koanf:"udp_port"`

	// UDPReadBuffer sets SO_RCVBUF on the socket in bytes.
	UDPReadBuffer int `koanf:"udp_read_buffer"`

	// MaxDatagramSize bounds a single read.
	MaxDatagramSize int `koanf:"max_datagram_size"`

	// TextEncoding names the datagram charset (IANA/WHATWG name).
	TextEncoding string `koanf:"text_encoding"`

	// ProtocolVersion is the active PSS grammar version.
	ProtocolVersion string `koanf:"protocol_version"`

	// GrammarPath points to a YAML grammar file. Empty uses the built-in grammar.
	GrammarPath string `koanf:"grammar_path"`

	// WatchGrammar reloads the registry when the grammar file changes.
	WatchGrammar bool `koanf:"watch_grammar"`

	// QueueSize bounds the receiver -> pipeline queue.
	QueueSize int `koanf:"queue_size"`

	// HubBuffer bounds each fan-out subscriber's buffer.
	HubBuffer int `koanf:"hub_buffer"`

	// DrainTimeoutMS is the grace period for draining accepted datagrams on shutdown.
	DrainTimeoutMS int `koanf:"drain_timeout_ms"`

	// DBPath is the SQLite database file. Empty disables persistence.
	DBPath string `koanf:"db_path"`

	// NATSURL enables the NATS publisher when non-empty.
	NATSURL string `koanf:"nats_url"`

	// NATSSubject is the subject prefix for published events and deltas.
	NATSSubject string `koanf:"nats_subject"`

	// OverrideBufferSize bounds events_since_break_stop.
	OverrideBufferSize int `koanf:"override_buffer_size"`

	// HitLevelHistory bounds the per-athlete hit-level history.
	HitLevelHistory int `koanf:"hit_level_history"`

	// TopErrors is N for the top-N validation error table.
	TopErrors int `koanf:"top_errors"`

	// ErrorTrackingCapacity bounds the number of distinct error messages tracked.
	ErrorTrackingCapacity int `koanf:"error_tracking_capacity"`

	// ConnectedSentinel and DisconnectedSentinel are the hardware connection markers.
	ConnectedSentinel    string `koanf:"connected_sentinel"`
	DisconnectedSentinel string `koanf:"disconnected_sentinel"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		UDPBind:               "0.0.0.0",
		UDPPort:               6000,
		UDPReadBuffer:         2 << 20,
		MaxDatagramSize:       65535,
		TextEncoding:          "utf-8",
		ProtocolVersion:       "2.3",
		WatchGrammar:          true,
		QueueSize:             10_000,
		HubBuffer:             1024,
		DrainTimeoutMS:        2000,
		DBPath:                "pss.db",
		NATSSubject:           "pss.events",
		OverrideBufferSize:    128,
		HitLevelHistory:       32,
		TopErrors:             10,
		ErrorTrackingCapacity: 256,
		ConnectedSentinel:     "connected",
		DisconnectedSentinel:  "disconnected",
	}
}

// DrainTimeout returns DrainTimeoutMS as a duration.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutMS) * time.Millisecond
}

// Validate checks the invariants the service relies on.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.UDPPort < 0 || c.UDPPort > 65535:
		return invalid("udp_port must be in [0,65535]")
	case c.ProtocolVersion == "":
		return invalid("protocol_version must not be empty")
	case c.QueueSize <= 0:
		return invalid("queue_size must be positive")
	case c.HubBuffer <= 0:
		return invalid("hub_buffer must be positive")
	case c.MaxDatagramSize <= 0:
		return invalid("max_datagram_size must be positive")
	}
	return nil
}
