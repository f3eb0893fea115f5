// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "ads-query-eval/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchConfig holds settings for the ADS search client.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the search endpoint (e.g. "https://api.adsabs.harvard.edu/v1/search/query").
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Token is the bearer token sent with every search request.
	Token string `json:"token,omitempty" yaml:"token,omitempty" mapstructure:"token"`

	// MaxItems is the number of results fetched per retrieval (default 1000).
	MaxItems int `json:"max_items" yaml:"max_items" mapstructure:"max_items"`

	// RequestsPerSecond paces outbound search requests. Zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// DedupIgnoreQTime leaves QTime out when a fetch is compared with the
	// query's previous payload. Off by default.
	DedupIgnoreQTime bool `json:"dedup_ignore_qtime" yaml:"dedup_ignore_qtime" mapstructure:"dedup_ignore_qtime"`
}

// DocStoreConfig holds settings for the SQLite document store.
type DocStoreConfig struct {
	// Path is the SQLite database file (e.g. "data/ads-query-eval.db").
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// ObjectBackend identifies the object store implementation.
type ObjectBackend string

const (
	ObjectBackendFS    ObjectBackend = "fs"
	ObjectBackendRedis ObjectBackend = "redis"
)

// ObjectStoreConfig holds settings for the payload object store.
type ObjectStoreConfig struct {
	// Backend selects the implementation: fs or redis.
	Backend ObjectBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Dir is the root directory for the fs backend.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// RedisURL is the connection URL for the redis backend.
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty" mapstructure:"redis_url"`

	// Bucket and Prefix scope every key.
	Bucket string `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
}

// BusBackend identifies the event publisher implementation.
type BusBackend string

const (
	BusNone   BusBackend = "none"
	BusMemory BusBackend = "memory"
	BusKafka  BusBackend = "kafka"
)

// BusConfig holds settings for event publishing.
type BusConfig struct {
	Backend     BusBackend `json:"backend" yaml:"backend" mapstructure:"backend"`
	Brokers     []string   `json:"brokers,omitempty" yaml:"brokers,omitempty" mapstructure:"brokers"`
	ClientID    string     `json:"client_id,omitempty" yaml:"client_id,omitempty" mapstructure:"client_id"`
	TopicPrefix string     `json:"topic_prefix,omitempty" yaml:"topic_prefix,omitempty" mapstructure:"topic_prefix"`
}

// ServerConfig holds settings for the reviewer web UI.
type ServerConfig struct {
	// Addr is the listen address (e.g. ":8080").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// SiteURL is the public base URL used in invite links.
	SiteURL string `json:"site_url" yaml:"site_url" mapstructure:"site_url"`

	// AdminUsername and AdminPassword guard invite-link creation.
	AdminUsername string `json:"admin_username,omitempty" yaml:"admin_username,omitempty" mapstructure:"admin_username"`
	AdminPassword string `json:"-" yaml:"admin_password,omitempty" mapstructure:"admin_password"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Pretty enables human-readable console output.
	Pretty bool `json:"pretty" yaml:"pretty" mapstructure:"pretty"`
}

// ScheduleConfig places the daily retrieval jobs on the clock.
type ScheduleConfig struct {
	// Timezone names the zone used for "today" and cron slots (default America/New_York).
	Timezone string `json:"timezone" yaml:"timezone" mapstructure:"timezone"`

	// StartHour is the hour of the first job slot (default 10).
	StartHour int `json:"start_hour" yaml:"start_hour" mapstructure:"start_hour"`

	// SpacingMinutes separates consecutive job slots (default 2).
	SpacingMinutes int `json:"spacing_minutes" yaml:"spacing_minutes" mapstructure:"spacing_minutes"`

	// Parallelism bounds concurrent jobs during a full run (default 4).
	Parallelism int `json:"parallelism" yaml:"parallelism" mapstructure:"parallelism"`
}

// AppConfig groups all component configurations.
type AppConfig struct {
	Search      SearchConfig      `json:"search" yaml:"search" mapstructure:"search"`
	DocStore    DocStoreConfig    `json:"docstore" yaml:"docstore" mapstructure:"docstore"`
	ObjectStore ObjectStoreConfig `json:"object_store" yaml:"object_store" mapstructure:"object_store"`
	Bus         BusConfig         `json:"bus" yaml:"bus" mapstructure:"bus"`
	Server      ServerConfig      `json:"server" yaml:"server" mapstructure:"server"`
	Log         LogConfig         `json:"log" yaml:"log" mapstructure:"log"`
	Schedule    ScheduleConfig    `json:"schedule" yaml:"schedule" mapstructure:"schedule"`

	// SeedFile optionally overrides the embedded query seed list.
	SeedFile string `json:"seed_file,omitempty" yaml:"seed_file,omitempty" mapstructure:"seed_file"`
}
