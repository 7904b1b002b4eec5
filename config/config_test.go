package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `planning:
  depots: ["MUT", "ALV"]
  operator: "night-shift"
  plan_cron: "30 20 * * *"
  time_zone: "Asia/Kolkata"
  fleet:
    kind: "file"
    path: "fleet.yaml"
policy:
  service_quota: 16
  ibl_capacity: 3
  weights:
    branding: 2
solver:
  timeout_seconds: 12
store:
  backend: "sqlite"
audit:
  - type: "jsonl"
    conf:
      path: "data/ledger.jsonl"
metrics:
  sinks:
    - type: "nop"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "planner"
  qos: 1
api:
  token: "secret"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"depots", len(cfg.Planning.Depots), 2},
		{"operator", cfg.Planning.Operator, "night-shift"},
		{"plan_cron", cfg.Planning.PlanCron, "30 20 * * *"},
		{"execute_cron", cfg.Planning.ExecuteCron, "0 5 * * *"},
		{"fleet", cfg.Planning.Fleet.Path, "fleet.yaml"},
		{"quota", cfg.Policy.ServiceQuota, 16},
		{"ibl", cfg.Policy.IBLCapacity, 3},
		{"cleaning_slots", cfg.Policy.CleaningSlots, 3},
		{"sla", cfg.Policy.SLAThreshold, 0.98},
		{"branding_weight", cfg.Policy.Weights.Branding, 2.0},
		{"timeout", cfg.Solver.Timeout(), 12 * time.Second},
		{"store", cfg.Store.Path, "data/schedules.db"},
		{"audit", cfg.Audit[0].Type, "jsonl"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"mqtt_qos", cfg.MQTT.QoS, byte(1)},
		{"mqtt_prefix", cfg.MQTT.TopicPrefix, "depot"},
		{"api_addr", cfg.API.Addr, ":8080"},
		{"api_token", cfg.API.Token, "secret"},
		{"plan_limiter", cfg.API.PlanLimiter() == nil, true},
		{"parallelism", cfg.Planning.Parallelism, 2},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.json", `{"planning":{"fleet":{"kind":"synthetic"}},"solver":{"timeout_seconds":30}}`)
	t.Setenv("K_SOLVER__TIMEOUT_SECONDS", "5")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Solver.Timeout())
	assert.Equal(t, []string{"MUT"}, cfg.Planning.Depots)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"cron":   "planning:\n  plan_cron: \"every night\"\n  fleet: {kind: synthetic}\n",
		"fleet":  "planning:\n  fleet: {kind: file}\n",
		"policy": "planning:\n  fleet: {kind: synthetic}\npolicy:\n  sla_threshold: 1.5\n",
		"store":  "planning:\n  fleet: {kind: synthetic}\nstore:\n  backend: postgres\n",
		"mqtt":   "planning:\n  fleet: {kind: synthetic}\nmqtt:\n  enabled: true\n",
		"tz":     "planning:\n  time_zone: Mars/Olympus\n  fleet: {kind: synthetic}\n",
		"solver": "planning:\n  fleet: {kind: synthetic}\nsolver:\n  timeout_seconds: -1\n",
		"api":    "planning:\n  fleet: {kind: synthetic}\napi:\n  plans_per_minute: -2\n",
		"log":    "planning:\n  fleet: {kind: synthetic}\nlogging:\n  level: loud\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", data))
			assert.Error(t, err)
		})
	}

	_, err := Load(writeConfig(t, "config.toml", ""))
	assert.Error(t, err)
}

func TestOperatingDay(t *testing.T) {
	cfg := Default()
	cfg.Planning.TimeZone = "Asia/Kolkata"
	trigger := time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC) // 01:30 on the 15th in Kochi
	assert.Equal(t, time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC), cfg.Planning.OperatingDay(trigger))

	zero := 0
	cfg.Planning.DayOffset = &zero
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), cfg.Planning.OperatingDay(trigger))
}

func TestLoadKeepsZeroCapacities(t *testing.T) {
	path := writeConfig(t, "config.yaml", "planning:\n  fleet: {kind: synthetic}\npolicy:\n  cleaning_slots: 0\n  ibl_capacity: 0\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Policy.CleaningSlots)
	assert.Equal(t, 0, cfg.Policy.IBLCapacity)
	assert.Equal(t, 18, cfg.Policy.ServiceQuota, "absent keys keep the reference policy")
	assert.Equal(t, 1.0, cfg.Policy.Weights.Mileage)
}

func TestPlanLimiter(t *testing.T) {
	c := APIConfig{PlansPerMinute: 6}
	c.SetDefaults()
	lim := c.PlanLimiter()
	require.NotNil(t, lim)
	assert.Equal(t, 1, lim.Burst())
	assert.InDelta(t, 0.1, float64(lim.Limit()), 1e-9)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 18, cfg.Policy.ServiceQuota)
}
