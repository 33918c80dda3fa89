// Package config loads the declarative key-value tree (spec §6
// "Configuration"): sections `servers`, `couplers`, `publishers`,
// `filters`, `applications`, `features`, plus the global
// settings (`log_level`, `log_file`, `trace_dir`, `manufacturer_xml`,
// `nmea2000_xml`, `debug_configuration`, `decode_definition_only`).
// A `services` section is not read: Config has no field for it.
//
// The tree is authored as YAML: `gopkg.in/yaml.v3` is already part of the
// teacher's own dependency closure (pulled in indirectly by testify), so
// it is promoted to a direct import here rather than hand-rolling a
// key-value parser the ecosystem already solves.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Globals holds the process-wide settings spec §6 lists outside any
// section.
type Globals struct {
	LogLevel             string `yaml:"log_level"`
	LogFile              string `yaml:"log_file"`
	TraceDir             string `yaml:"trace_dir"`
	ManufacturerXML      string `yaml:"manufacturer_xml"`
	NMEA2000XML          string `yaml:"nmea2000_xml"`
	DebugConfiguration   bool   `yaml:"debug_configuration"`
	DecodeDefinitionOnly bool   `yaml:"decode_definition_only"`
}

// CouplerConfig is one `couplers` entry. Kind selects the driver variant
// (spec §4.9): "serial", "tcp", "udp", "socketcan", "logreplay",
// "injector".
type CouplerConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// serial
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	// tcp / udp
	Addr          string        `yaml:"addr"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	RetryInterval time.Duration `yaml:"retry_interval"`

	// socketcan
	Interface            string        `yaml:"interface"`
	BringUpInterface     bool          `yaml:"bring_up_interface"`
	MinInterFrameSpacing time.Duration `yaml:"min_inter_frame_spacing"`

	// logreplay
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`

	// injector
	Target    string `yaml:"target"`
	WriteOnly bool   `yaml:"write_only"`

	Timeout time.Duration `yaml:"timeout"`
}

// PublisherConfig is one `publishers` entry. Kind selects the driver
// variant (spec §4.10): "tcpstream", "rpcpush", "trace".
type PublisherConfig struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"`
	Sources []string `yaml:"sources"`

	// tcpstream
	ListenAddr string        `yaml:"listen_addr"`
	Format     string        `yaml:"format"`
	MaxSilent  time.Duration `yaml:"max_silent"`

	// rpcpush
	Broker        string        `yaml:"broker"`
	Topic         string        `yaml:"topic"`
	Mode          string        `yaml:"mode"`
	RetryInterval time.Duration `yaml:"retry_interval"`

	// trace
	Dir      string `yaml:"dir"`
	ToStdout bool   `yaml:"to_stdout"`

	QueueSize int `yaml:"queue_size"`
	MaxLost   int `yaml:"max_lost"`

	Filters []FilterConfig `yaml:"filters"`
}

// FilterConfig is one `filters` entry (spec §4.11). Entries are applied
// when declared inline in a publisher's Filters list; top-level entries
// are not resolved by name.
type FilterConfig struct {
	Name   string `yaml:"name"`
	Action string `yaml:"action"` // "select" | "discard"

	// 0183 filter
	Talkers    []string `yaml:"talkers"`
	Formatters []string `yaml:"formatters"`

	// 2000 filter
	Sources         []uint8  `yaml:"sources"`
	PGNs            []uint32 `yaml:"pgns"`
	ManufacturerIDs []uint16 `yaml:"manufacturer_ids"`
	ProductNames    []string `yaml:"product_names"`

	// time filter
	MinPeriod time.Duration `yaml:"min_period"`
}

// ApplicationConfig is one `applications` entry: a named bundle of
// feature flags an operator can toggle as a unit.
type ApplicationConfig struct {
	Name     string   `yaml:"name"`
	Features []string `yaml:"features"`
}

// Config is the full declarative tree.
type Config struct {
	Globals Globals `yaml:",inline"`

	Servers      []ServerConfig      `yaml:"servers"`
	Couplers     []CouplerConfig     `yaml:"couplers"`
	Publishers   []PublisherConfig   `yaml:"publishers"`
	Filters      []FilterConfig      `yaml:"filters"`
	Applications []ApplicationConfig `yaml:"applications"`
	Features     map[string]bool     `yaml:"features"`

	StopSystem bool        `yaml:"stop_system"`
	Retry      RetryConfig `yaml:"retry"`
}

// ServerConfig is one `servers` entry (a listening endpoint offering one
// of the protocol/port roles spec §6 enumerates).
type ServerConfig struct {
	Name string `yaml:"name"`
	Addr string `yaml:"addr"`
	Role string `yaml:"role"` // "nmea_tcp" | "shipmodul_passthrough" | "rpc" | ...
}

// RetryConfig mirrors router.RetryPolicy in config-file form.
type RetryConfig struct {
	MaxAttempt int           `yaml:"max_attempt"`
	OpenDelay  time.Duration `yaml:"open_delay"`
}

// Load reads and parses the config tree at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &c, nil
}
