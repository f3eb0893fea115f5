// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config assembles the application configuration from defaults, an
// optional YAML file, ADS_QUERY_EVAL_* environment variables and secrets.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/ads-query-eval/internal/apperr"
	"github.com/pdiddy/ads-query-eval/internal/jobs"
	"github.com/pdiddy/ads-query-eval/internal/retrieval"
	"github.com/pdiddy/ads-query-eval/internal/search"
	"github.com/pdiddy/ads-query-eval/internal/secrets"
	"github.com/pdiddy/ads-query-eval/pkg/types"
)

// EnvPrefix prefixes environment overrides, e.g. ADS_QUERY_EVAL_SEARCH_TOKEN.
const EnvPrefix = "ADS_QUERY_EVAL"

// Name is the config file base name looked up in the working directory
// and ~/.config/ads-query-eval.
const Name = "ads-query-eval"

// SetDefaults registers every key with its default so environment
// overrides apply even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("search.base_url", search.DefaultBaseURL)
	v.SetDefault("search.token", "")
	v.SetDefault("search.max_items", search.DefaultMaxItems)
	v.SetDefault("search.requests_per_second", 2.0)
	v.SetDefault("search.dedup_ignore_qtime", false)
	v.SetDefault("search.timeout", 60*time.Second)
	v.SetDefault("search.user_agent", "ads-query-eval/0.1")

	v.SetDefault("docstore.path", "data/ads-query-eval.db")

	v.SetDefault("object_store.backend", string(types.ObjectBackendFS))
	v.SetDefault("object_store.dir", "data/objects")
	v.SetDefault("object_store.redis_url", "")
	v.SetDefault("object_store.bucket", "ads-query-eval")
	v.SetDefault("object_store.prefix", "retrievals")

	v.SetDefault("bus.backend", string(types.BusNone))
	v.SetDefault("bus.brokers", []string{})
	v.SetDefault("bus.client_id", "ads-query-eval")
	v.SetDefault("bus.topic_prefix", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.site_url", "http://localhost:8080")
	v.SetDefault("server.admin_username", "")
	v.SetDefault("server.admin_password", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("schedule.timezone", retrieval.DefaultTimezone)
	v.SetDefault("schedule.start_hour", jobs.DefaultStartHour)
	v.SetDefault("schedule.spacing_minutes", jobs.DefaultSpacingMinutes)
	v.SetDefault("schedule.parallelism", jobs.DefaultParallelism)

	v.SetDefault("seed_file", "")
}

// BindEnv makes ADS_QUERY_EVAL_<SECTION>_<KEY> override section.key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes v into an AppConfig. Secrets fill credentials left empty by
// the file and environment.
func Load(v *viper.Viper, sec map[string]string) (types.AppConfig, error) {
	var cfg types.AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, apperr.Wrap(apperr.KindConfiguration, err, "decoding configuration")
	}
	fill(&cfg.Search.Token, sec[secrets.ADSAPIToken])
	fill(&cfg.Server.AdminUsername, sec[secrets.AdminUsername])
	fill(&cfg.Server.AdminPassword, sec[secrets.AdminPassword])
	fill(&cfg.ObjectStore.RedisURL, sec[secrets.RedisURL])

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func fill(dst *string, fallback string) {
	if *dst == "" {
		*dst = fallback
	}
}

// Validate checks settings every command depends on. Credentials are
// checked by the commands that need them.
func Validate(cfg types.AppConfig) error {
	var problems []string
	if cfg.Search.BaseURL == "" {
		problems = append(problems, "search.base_url is empty")
	}
	if cfg.Search.MaxItems <= 0 {
		problems = append(problems, "search.max_items must be positive")
	}
	if cfg.DocStore.Path == "" {
		problems = append(problems, "docstore.path is empty")
	}
	switch cfg.ObjectStore.Backend {
	case types.ObjectBackendFS:
		if cfg.ObjectStore.Dir == "" {
			problems = append(problems, "object_store.dir is empty")
		}
	case types.ObjectBackendRedis:
		if cfg.ObjectStore.RedisURL == "" {
			problems = append(problems, "object_store.redis_url is empty")
		}
	default:
		problems = append(problems, fmt.Sprintf("object_store.backend %q is not fs or redis", cfg.ObjectStore.Backend))
	}
	switch cfg.Bus.Backend {
	case types.BusNone, types.BusMemory:
	case types.BusKafka:
		if len(cfg.Bus.Brokers) == 0 {
			problems = append(problems, "bus.brokers is empty")
		}
	default:
		problems = append(problems, fmt.Sprintf("bus.backend %q is not none, memory or kafka", cfg.Bus.Backend))
	}
	if _, err := Location(cfg.Schedule); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return apperr.New(apperr.KindConfiguration, "invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location resolves the schedule timezone.
func Location(sched types.ScheduleConfig) (*time.Location, error) {
	name := sched.Timezone
	if name == "" {
		name = retrieval.DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone %q: %w", name, err)
	}
	return loc, nil
}
