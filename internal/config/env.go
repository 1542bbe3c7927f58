package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STRATEGYBENCH_"

// LoadDotEnv loads the given .env files into the process environment.
// Missing files are skipped; variables already set are kept.
func LoadDotEnv(paths ...string) error {
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnvOverrides applies the STRATEGYBENCH_* variables on top of the
// batch file.
func applyEnvOverrides(b *Batch, lookup func(string) (string, bool)) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"PROVIDER", &b.Provider.Name},
		{"ENDPOINT", &b.Provider.Endpoint},
		{"MODEL", &b.Provider.Model},
		{"API_KEY_ENV", &b.Provider.APIKeyEnv},
		{"RESULTS_DIR", &b.Paths.Results},
		{"EVENTS_FILE", &b.Paths.Events},
		{"LEDGER", &b.Paths.Ledger},
		{"REDIS_ADDR", &b.Cache.RedisAddr},
		{"LOG_LEVEL", &b.Log.Level},
		{"LOG_FORMAT", &b.Log.Format},
		{"RESUME", &b.Resume},
	}
	for _, s := range strs {
		if v := lookupTrim(lookup, EnvPrefix+s.name); v != "" {
			*s.dst = v
		}
	}
	b.Cache.redisPassword = lookupTrim(lookup, EnvPrefix+"REDIS_PASSWORD")

	if v := lookupTrim(lookup, EnvPrefix+"MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sMAX_RETRIES: %w", ErrInvalidBatch, EnvPrefix, err)
		}
		b.Run.MaxRetries = n
	}
	if v := lookupTrim(lookup, EnvPrefix+"CACHE_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sCACHE_ENABLED: %w", ErrInvalidBatch, EnvPrefix, err)
		}
		b.Cache.Enabled = enabled
	}
	return nil
}

func lookupTrim(lookup func(string) (string, bool), key string) string {
	if key == "" {
		return ""
	}
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}
