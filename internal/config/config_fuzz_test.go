//go:build go1.18

package config_test

import (
	"testing"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/config"
	"gopkg.in/yaml.v3"
)

func FuzzConfigParse(f *testing.F) {
	// Valid config seeds
	f.Add(`log:
  level: info
  format: auto
worker:
  count: 4
  max_retries: 3
queue:
  capacity: 100
`)
	f.Add(`log:
  level: debug
  format: json
workspace:
  cleanup_strategy: fifo
  total_quota_bytes: 1073741824
`)
	f.Add(`{}`)
	f.Add(``)
	f.Add(config.DefaultConfigYAML)
	f.Add(`rate_limit:
  enabled: true
  requests: 100
  window_seconds: 60
git:
  binary: git
  default_remote: origin
server:
  enabled: true
  addr: 127.0.0.1:7280
`)

	f.Fuzz(func(t *testing.T, data string) {
		var cfg config.Config

		// Should not panic
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("panic parsing config: %v", r)
			}
		}()

		err := yaml.Unmarshal([]byte(data), &cfg)
		if err != nil {
			return
		}

		// Validation must handle any parsed shape without panicking.
		_ = config.ValidateConfig(&cfg)
	})
}
