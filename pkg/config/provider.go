package config

import "time"

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Station   StationData   `json:"station"`
	Discovery DiscoveryData `json:"discovery"`
	Collector CollectorData `json:"collector"`
	Poller    PollerData    `json:"poller"`
	Logging   LoggingData   `json:"logging,omitempty"`
	Telemetry TelemetryData `json:"telemetry,omitempty"`
	Sensors   []SensorData  `json:"sensors,omitempty"`
}

// StationData holds configuration specific to the weather station device
type StationData struct {
	Hostname                    string        `json:"hostname"`
	Port                        int           `json:"port,omitempty"`
	Timeout                     time.Duration `json:"timeout,omitempty"`
	StateFile                   string        `json:"state_file,omitempty"`
	RediscoverOnProtocolFailure bool          `json:"rediscover_on_protocol_failure,omitempty"`
}

// DiscoveryData holds configuration for UDP broadcast discovery
type DiscoveryData struct {
	BroadcastAddr string        `json:"broadcast_addr,omitempty"`
	BroadcastPort int           `json:"broadcast_port,omitempty"`
	NameMarker    string        `json:"name_marker,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`
}

// CollectorData holds configuration for the downstream metrics collector
type CollectorData struct {
	Hostname     string        `json:"hostname"`
	Port         int           `json:"port,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty"`
	MetricPrefix string        `json:"metric_prefix,omitempty"`
}

// PollerData holds configuration for the poll loop
type PollerData struct {
	Interval      time.Duration `json:"interval,omitempty"`
	MaxRetries    int           `json:"max_retries,omitempty"`
	RetryDelay    time.Duration `json:"retry_delay,omitempty"`
	CycleDeadline time.Duration `json:"cycle_deadline,omitempty"`
	PollMinMax    bool          `json:"poll_min_max,omitempty"`
}

// LoggingData holds optional rotating-file log output settings
type LoggingData struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// TelemetryData holds the optional metrics/health HTTP listener settings
type TelemetryData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
}

// SensorData describes one sensor field in the station response frame.
// When a sensors list is present in the config it replaces the built-in
// WS980 field map.
type SensorData struct {
	Name    string  `json:"name"`
	Offset  int     `json:"offset"`
	Width   int     `json:"width"`
	Divisor float64 `json:"divisor,omitempty"`
	Signed  bool    `json:"signed,omitempty"`
	Unit    string  `json:"unit,omitempty"`
}
