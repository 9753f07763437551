package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`  // HTTP server settings
	ADSB    ADSBConfig    `toml:"adsb"`    // Receiver feed settings
	Tracker TrackerConfig `toml:"tracker"` // Target selection settings
	Station StationConfig `toml:"station"` // Observer location
	PTZ     PTZConfig     `toml:"ptz"`     // Pointing device settings
	Storage StorageConfig `toml:"storage"` // Sighting log settings
	Logging LoggingConfig `toml:"logging"` // Application logging settings
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host               string   `toml:"host"`                  // Address to bind to (127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	Port               int      `toml:"port"`                  // HTTP port
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // Origins allowed for CORS requests (["*"] for all)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading a request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing a response (0 = no timeout)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Keep-alive idle limit
}

// ADSBConfig contains the receiver feed settings.
type ADSBConfig struct {
	Host string `toml:"host"` // dump1090 hostname/ip

	// Port defaults to 30002 for the raw feed and 30003 for sbs.
	Port int `toml:"port"`

	// SourceType selects the feed format:
	// - "raw": dump1090 "TCP raw output" hex frames, decoded in-process
	// - "sbs": BaseStation CSV with fields already decoded
	SourceType string `toml:"source_type"`

	MaxAircraft          int `toml:"max_aircraft"`               // Cache capacity before least-recently-seen eviction
	MaxAircraftAgeSecs   int `toml:"max_aircraft_age_seconds"`   // Silence after which an aircraft is forgotten
	ReconnectIntervalSec int `toml:"reconnect_interval_seconds"` // Minimum spacing between connection attempts
	DialTimeoutSecs      int `toml:"dial_timeout_seconds"`       // TCP connect timeout
	SweepIntervalSecs    int `toml:"sweep_interval_seconds"`     // How often expired aircraft are purged
}

// TrackerConfig contains target selection settings.
type TrackerConfig struct {
	StalenessSecs int `toml:"staleness_seconds"` // Silence after which any candidate may displace the target
}

// StationConfig is the observer's location.
type StationConfig struct {
	Latitude   float64 `toml:"latitude"`    // Decimal degrees, north positive
	Longitude  float64 `toml:"longitude"`   // Decimal degrees, east positive
	ElevationM float64 `toml:"elevation_m"` // Meters above the ellipsoid
}

// PTZConfig contains the pointing device settings.
type PTZConfig struct {
	Enabled              bool    `toml:"enabled"`
	BaseURL              string  `toml:"base_url"`      // Alpaca server base URL (e.g., http://192.168.1.20:11111)
	DeviceNumber         int     `toml:"device_number"` // Alpaca device number
	AzimuthOffsetDeg     float64 `toml:"azimuth_offset_deg"`
	AltitudeOffsetDeg    float64 `toml:"altitude_offset_deg"`
	AlignToMagneticNorth bool    `toml:"align_to_magnetic_north"` // Correct true bearings by the local declination
	CommandBackoffSecs   int     `toml:"command_backoff_seconds"` // Pause after the device becomes unreachable
	TimeoutSecs          int     `toml:"timeout_seconds"`         // HTTP timeout for device commands
}

// StorageConfig contains the sighting log settings.
type StorageConfig struct {
	Enabled    bool   `toml:"enabled"`
	SQLitePath string `toml:"sqlite_path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // console or json
}

// Load reads and decodes a TOML config file.
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback tries the preferred path first, then the conventional
// locations.
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,
		"configs/config.toml",
		"config.toml",
	}

	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if len(c.Server.CORSAllowedOrigins) == 0 {
		c.Server.CORSAllowedOrigins = []string{"*"}
	}

	if c.ADSB.Host == "" {
		c.ADSB.Host = "localhost"
	}
	if c.ADSB.SourceType == "" {
		c.ADSB.SourceType = "raw"
	}
	if c.ADSB.SourceType != "raw" && c.ADSB.SourceType != "sbs" {
		return fmt.Errorf("invalid ADSB source type: %s (must be 'raw' or 'sbs')", c.ADSB.SourceType)
	}
	if c.ADSB.Port == 0 {
		if c.ADSB.SourceType == "sbs" {
			c.ADSB.Port = 30003
		} else {
			c.ADSB.Port = 30002
		}
	}
	if c.ADSB.Port < 0 || c.ADSB.Port > 65535 {
		return fmt.Errorf("invalid ADSB port: %d", c.ADSB.Port)
	}
	if c.ADSB.MaxAircraft == 0 {
		c.ADSB.MaxAircraft = 1000
	}
	if c.ADSB.MaxAircraft < 0 {
		return fmt.Errorf("invalid max_aircraft: %d", c.ADSB.MaxAircraft)
	}
	if c.ADSB.MaxAircraftAgeSecs == 0 {
		c.ADSB.MaxAircraftAgeSecs = 60
	}
	if c.ADSB.MaxAircraftAgeSecs < 0 {
		return fmt.Errorf("invalid max_aircraft_age_seconds: %d", c.ADSB.MaxAircraftAgeSecs)
	}
	if c.ADSB.ReconnectIntervalSec == 0 {
		c.ADSB.ReconnectIntervalSec = 5
	}
	if c.ADSB.DialTimeoutSecs == 0 {
		c.ADSB.DialTimeoutSecs = 10
	}
	if c.ADSB.SweepIntervalSecs == 0 {
		c.ADSB.SweepIntervalSecs = 30
	}

	if c.Tracker.StalenessSecs == 0 {
		c.Tracker.StalenessSecs = 60
	}
	if c.Tracker.StalenessSecs < 0 {
		return fmt.Errorf("invalid staleness_seconds: %d", c.Tracker.StalenessSecs)
	}

	if c.Station.Latitude < -90 || c.Station.Latitude > 90 {
		return fmt.Errorf("invalid station latitude: %f", c.Station.Latitude)
	}
	if c.Station.Longitude < -180 || c.Station.Longitude > 180 {
		return fmt.Errorf("invalid station longitude: %f", c.Station.Longitude)
	}

	if c.PTZ.Enabled {
		if c.PTZ.BaseURL == "" {
			return fmt.Errorf("ptz enabled but base_url is empty")
		}
		if c.PTZ.CommandBackoffSecs == 0 {
			c.PTZ.CommandBackoffSecs = 5
		}
		if c.PTZ.TimeoutSecs == 0 {
			c.PTZ.TimeoutSecs = 30
		}
	}

	if c.Storage.Enabled && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "sightings.db"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	return nil
}
