package planner_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/fingerprint"
	"github.com/paulschiretz/pgl-mirror/pkg/logfile"
	"github.com/paulschiretz/pgl-mirror/pkg/planner"
)

func baseConfig() config.Config {
	cfg := config.NewDefault()
	cfg.Source = "/data/src"
	cfg.Replica = "/data/dst"
	cfg.Log.Path = "/var/log/mirror.log"
	cfg.Interval = 2
	return cfg
}

func TestGenerateMirrorPlan(t *testing.T) {
	tests := []struct {
		name        string
		configMod   func(*config.Config)
		mode        planner.Mode
		expectError bool
		validate    func(*testing.T, *planner.MirrorPlan)
	}{
		{
			name: "Loop Mode - Defaults",
			mode: planner.Loop,
			validate: func(t *testing.T, p *planner.MirrorPlan) {
				if p.Interval != 2*time.Minute {
					t.Errorf("Expected interval 2m, got %s", p.Interval)
				}
				if p.Algorithm != fingerprint.MD5 {
					t.Errorf("Expected md5, got %s", p.Algorithm)
				}
				if p.Workers != 1 {
					t.Errorf("Expected a single worker by default, got %d", p.Workers)
				}
				if p.DigestCache.Size != 0 {
					t.Error("Expected digest cache to be off by default")
				}
				if p.Hooks != nil {
					t.Error("Expected no hook plan without hook commands")
				}
				if p.Log.Compression != logfile.Gzip {
					t.Errorf("Expected gzip log compression, got %s", p.Log.Compression)
				}
				if !p.Preflight.ReplicaWritable || !p.Preflight.PathNesting {
					t.Error("Expected every preflight check in loop mode")
				}
			},
		},
		{
			name: "Loop Mode - Watch And Cache",
			mode: planner.Loop,
			configMod: func(c *config.Config) {
				c.Engine.Watch = true
				c.Engine.WatchDebounceMs = 500
				c.Engine.DigestCacheSize = 1000
				c.Engine.DigestCacheTTLSeconds = 60
			},
			validate: func(t *testing.T, p *planner.MirrorPlan) {
				if !p.Watch.Enabled || p.Watch.Debounce != 500*time.Millisecond {
					t.Errorf("Unexpected watch plan: %+v", p.Watch)
				}
				if p.DigestCache.Size != 1000 || p.DigestCache.TTL != time.Minute {
					t.Errorf("Unexpected digest cache plan: %+v", p.DigestCache)
				}
			},
		},
		{
			name: "Once Mode - Watch Is Ignored",
			mode: planner.Once,
			configMod: func(c *config.Config) {
				c.Engine.Watch = true
				c.Hooks.PreCycle = []string{"echo pre"}
			},
			validate: func(t *testing.T, p *planner.MirrorPlan) {
				if p.Watch.Enabled {
					t.Error("Expected watch to be off for a single cycle")
				}
				if p.Hooks == nil || p.Hooks.PreCycleCommands[0] != "echo pre" {
					t.Errorf("Expected pre-cycle hook, got %+v", p.Hooks)
				}
			},
		},
		{
			name: "Listing Mode - Read Only",
			mode: planner.Listing,
			configMod: func(c *config.Config) {
				c.Hooks.PostCycle = []string{"echo post"}
			},
			validate: func(t *testing.T, p *planner.MirrorPlan) {
				if !p.DryRun {
					t.Error("Expected listing to be a dry run")
				}
				if p.Hooks != nil {
					t.Error("Expected hooks to be skipped when listing")
				}
				if p.Preflight.ReplicaWritable {
					t.Error("Expected no writability check when listing")
				}
				if p.LogPath != "" {
					t.Error("Expected listing to ignore the log file")
				}
			},
		},
		{
			name: "Dry Run Propagates To Hooks",
			mode: planner.Loop,
			configMod: func(c *config.Config) {
				c.Engine.DryRun = true
				c.Hooks.PreCycle = []string{"echo pre"}
			},
			validate: func(t *testing.T, p *planner.MirrorPlan) {
				if !p.Hooks.DryRun {
					t.Error("Expected hook plan to be a dry run")
				}
			},
		},
		{
			name:        "Loop Mode - Missing Interval",
			mode:        planner.Loop,
			configMod:   func(c *config.Config) { c.Interval = 0 },
			expectError: true,
		},
		{
			name:        "Invalid Algorithm",
			mode:        planner.Once,
			configMod:   func(c *config.Config) { c.HashAlgorithm = "crc32" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			if tt.configMod != nil {
				tt.configMod(&cfg)
			}
			plan, err := planner.GenerateMirrorPlan(cfg, tt.mode)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected an error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if plan.Mode != tt.mode {
				t.Errorf("Expected mode %s, got %s", tt.mode, plan.Mode)
			}
			tt.validate(t, plan)
		})
	}
}

func TestModeJSON(t *testing.T) {
	data, err := json.Marshal(planner.Listing)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"listing"` {
		t.Errorf("Expected \"listing\", got %s", data)
	}

	var m planner.Mode
	if err := json.Unmarshal([]byte(`"once"`), &m); err != nil {
		t.Fatal(err)
	}
	if m != planner.Once {
		t.Errorf("Expected Once, got %s", m)
	}
	if err := json.Unmarshal([]byte(`"forever"`), &m); err == nil {
		t.Error("Expected an error for an unknown mode")
	}
}
