package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Station   StationYAML   `yaml:"station"`
		Discovery DiscoveryYAML `yaml:"discovery,omitempty"`
		Collector CollectorYAML `yaml:"collector"`
		Poller    PollerYAML    `yaml:"poller,omitempty"`
		Logging   LoggingYAML   `yaml:"logging,omitempty"`
		Telemetry TelemetryYAML `yaml:"telemetry,omitempty"`
		Sensors   []SensorYAML  `yaml:"sensors,omitempty"`
	}

	err = yaml.Unmarshal(cfgFile, &yamlConfig)
	if err != nil {
		return nil, err
	}

	// Convert to our internal format
	config := &ConfigData{
		Station: StationData{
			Hostname:                    yamlConfig.Station.Hostname,
			Port:                        yamlConfig.Station.Port,
			Timeout:                     parseDuration(yamlConfig.Station.Timeout),
			StateFile:                   yamlConfig.Station.StateFile,
			RediscoverOnProtocolFailure: yamlConfig.Station.RediscoverOnProtocolFailure,
		},
		Discovery: DiscoveryData{
			BroadcastAddr: yamlConfig.Discovery.BroadcastAddr,
			BroadcastPort: yamlConfig.Discovery.BroadcastPort,
			NameMarker:    yamlConfig.Discovery.NameMarker,
			Timeout:       parseDuration(yamlConfig.Discovery.Timeout),
		},
		Collector: CollectorData{
			Hostname:     yamlConfig.Collector.Hostname,
			Port:         yamlConfig.Collector.Port,
			Timeout:      parseDuration(yamlConfig.Collector.Timeout),
			MetricPrefix: yamlConfig.Collector.MetricPrefix,
		},
		Poller: PollerData{
			Interval:      parseDuration(yamlConfig.Poller.Interval),
			MaxRetries:    yamlConfig.Poller.MaxRetries,
			RetryDelay:    parseDuration(yamlConfig.Poller.RetryDelay),
			CycleDeadline: parseDuration(yamlConfig.Poller.CycleDeadline),
			PollMinMax:    yamlConfig.Poller.PollMinMax,
		},
		Logging: LoggingData{
			File:       yamlConfig.Logging.File,
			MaxSizeMB:  yamlConfig.Logging.MaxSizeMB,
			MaxBackups: yamlConfig.Logging.MaxBackups,
		},
		Telemetry: TelemetryData{
			ListenAddr: yamlConfig.Telemetry.ListenAddr,
		},
	}

	for _, sensor := range yamlConfig.Sensors {
		config.Sensors = append(config.Sensors, SensorData{
			Name:    sensor.Name,
			Offset:  sensor.Offset,
			Width:   sensor.Width,
			Divisor: sensor.Divisor,
			Signed:  sensor.Signed,
			Unit:    sensor.Unit,
		})
	}

	y.config = config
	return config, nil
}

// IsReadOnly returns true since YAML files are read-only at runtime
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML providers
func (y *YAMLProvider) Close() error {
	return nil
}

// parseDuration converts a YAML duration string to a time.Duration,
// returning zero (caller applies defaults) when empty or invalid
func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// YAML conversion structs with YAML tags
type StationYAML struct {
	Hostname                    string `yaml:"hostname"`
	Port                        int    `yaml:"port,omitempty"`
	Timeout                     string `yaml:"timeout,omitempty"`
	StateFile                   string `yaml:"state_file,omitempty"`
	RediscoverOnProtocolFailure bool   `yaml:"rediscover_on_protocol_failure,omitempty"`
}

type DiscoveryYAML struct {
	BroadcastAddr string `yaml:"broadcast_addr,omitempty"`
	BroadcastPort int    `yaml:"broadcast_port,omitempty"`
	NameMarker    string `yaml:"name_marker,omitempty"`
	Timeout       string `yaml:"timeout,omitempty"`
}

type CollectorYAML struct {
	Hostname     string `yaml:"hostname"`
	Port         int    `yaml:"port,omitempty"`
	Timeout      string `yaml:"timeout,omitempty"`
	MetricPrefix string `yaml:"metric_prefix,omitempty"`
}

type PollerYAML struct {
	Interval      string `yaml:"interval,omitempty"`
	MaxRetries    int    `yaml:"max_retries,omitempty"`
	RetryDelay    string `yaml:"retry_delay,omitempty"`
	CycleDeadline string `yaml:"cycle_deadline,omitempty"`
	PollMinMax    bool   `yaml:"poll_min_max,omitempty"`
}

type LoggingYAML struct {
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

type TelemetryYAML struct {
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

type SensorYAML struct {
	Name    string  `yaml:"name"`
	Offset  int     `yaml:"offset"`
	Width   int     `yaml:"width"`
	Divisor float64 `yaml:"divisor,omitempty"`
	Signed  bool    `yaml:"signed,omitempty"`
	Unit    string  `yaml:"unit,omitempty"`
}
