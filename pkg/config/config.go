// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads controller configuration from defaults, a YAML file,
// AVATAR_ environment variables and --set command line overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

type Config struct {
	Log         LogConfig         `koanf:"log"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Agent       AgentConfig       `koanf:"agent"`
	Identities  IdentitiesConfig  `koanf:"identities"`
	Tasks       TasksConfig       `koanf:"tasks"`
	Runtime     RuntimeConfig     `koanf:"runtime"`
	Bootstrap   BootstrapConfig   `koanf:"bootstrap"`
	Procedures  ProceduresConfig  `koanf:"procedures"`
	Persistence PersistenceConfig `koanf:"persistence"`
	Knowledge   KnowledgeConfig   `koanf:"knowledge"`
	Transport   TransportConfig   `koanf:"transport"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// AgentConfig identifies this controller and the agent it owns.
type AgentConfig struct {
	ID          string `koanf:"id"` // network identity of the controller
	PetID       string `koanf:"pet_id"`
	ExternalID  string `koanf:"external_id"`
	OwnerID     string `koanf:"owner_id"`
	Name        string `koanf:"name"`
	Type        string `koanf:"type"`
	DefaultType string `koanf:"default_type"`
	Traits      string `koanf:"traits"`
}

const internalIDPrefix = "id_"

// ExternalAgentID returns the id the router knows the agent by. Without
// an explicit external_id it is the pet id minus the internal "id_" prefix.
func (a AgentConfig) ExternalAgentID() string {
	if a.ExternalID != "" {
		return a.ExternalID
	}
	return strings.TrimPrefix(a.PetID, internalIDPrefix)
}

// IdentitiesConfig holds the well-known sender identities.
type IdentitiesConfig struct {
	Proxy      string `koanf:"proxy"`
	Supervisor string `koanf:"supervisor"`
	Shell      string `koanf:"shell"`
	Learner    string `koanf:"learner"`
}

type TaskConfig struct {
	Enabled   bool `koanf:"enabled"`
	Frequency int  `koanf:"frequency"` // cycles
}

type TasksConfig struct {
	ProcedureInterpreter TaskConfig `koanf:"procedure_interpreter"`
	ActionSelection      TaskConfig `koanf:"action_selection"`
	ImportanceDecay      TaskConfig `koanf:"importance_decay"`
	EntityExperience     TaskConfig `koanf:"entity_experience"`
}

type RuntimeConfig struct {
	CyclePeriod time.Duration `koanf:"cycle_period"`
}

// BootstrapConfig lists the definition sources read, in order, on a cold start.
type BootstrapConfig struct {
	Stdlib              string `koanf:"stdlib"`
	RulesPreconditions  string `koanf:"rules_preconditions"`
	SelectPreconditions string `koanf:"select_preconditions"`
	ActionSchemata      string `koanf:"action_schemata"`
}

type ProceduresConfig struct {
	TypeCheck bool `koanf:"type_check"`
}

type PersistenceConfig struct {
	DatabaseDir  string `koanf:"database_dir"`
	MetadataFile string `koanf:"metadata_file"`
	SnapshotFile string `koanf:"snapshot_file"`
}

type KnowledgeConfig struct {
	DecayAmount   int `koanf:"decay_amount"`
	MinImportance int `koanf:"min_importance"`
}

type TransportConfig struct {
	ListenAddr string `koanf:"listen_addr"`
	RouterAddr string `koanf:"router_addr"`
}

// Global k instance
var k = koanf.New(".")

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"telemetry.exporter": "none",

	"agent.id":           "OAC_1",
	"agent.pet_id":       "1",
	"agent.name":         "unknown",
	"agent.type":         "pet",
	"agent.default_type": "pet",

	"identities.proxy":      "PROXY",
	"identities.supervisor": "SPAWNER",
	"identities.shell":      "COMBO_SHELL",
	"identities.learner":    "LS",

	"tasks.procedure_interpreter.enabled":   true,
	"tasks.procedure_interpreter.frequency": 1,
	"tasks.action_selection.enabled":        true,
	"tasks.action_selection.frequency":      10,
	"tasks.importance_decay.enabled":        true,
	"tasks.importance_decay.frequency":      50,
	"tasks.entity_experience.enabled":       true,
	"tasks.entity_experience.frequency":     100,

	"runtime.cycle_period": "100ms",

	"procedures.type_check": false,

	"persistence.database_dir":  "~/.avatar/db",
	"persistence.metadata_file": "agent.yaml",
	"persistence.snapshot_file": "knowledge.db",

	"knowledge.decay_amount":   1,
	"knowledge.min_importance": -100,

	"transport.listen_addr": "localhost:16330",
	"transport.router_addr": "localhost:16312",
}

func Load(path string) (*Config, error) {
	return load(path, nil)
}

// LoadWithCLI parses --config and --set flags and loads the configuration.
func LoadWithCLI(args []string) (*Config, error) {
	path, overrides, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(path, overrides)
}

func load(path string, overrides map[string]any) (*Config, error) {
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (AVATAR_TASKS__ACTION_SELECTION__ENABLED -> tasks.action_selection.enabled)
	if err := k.Load(env.Provider("AVATAR_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, "AVATAR_")), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	// 3. CLI overrides win over everything else
	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	cfg.Persistence.DatabaseDir = expandHome(cfg.Persistence.DatabaseDir)
	return &cfg, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func parseCLIOverrides(args []string) (string, map[string]any, error) {
	var path string
	overrides := make(map[string]any)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("missing value for --config")
			}
			path = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			path = strings.TrimPrefix(arg, "--config=")
		case arg == "--set":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("missing value for --set")
			}
			if err := parseSet(args[i+1], overrides); err != nil {
				return "", nil, err
			}
			i++
		case strings.HasPrefix(arg, "--set="):
			if err := parseSet(strings.TrimPrefix(arg, "--set="), overrides); err != nil {
				return "", nil, err
			}
		}
	}
	return path, overrides, nil
}

func parseSet(expr string, overrides map[string]any) error {
	key, raw, ok := strings.Cut(expr, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("invalid --set value %q, want key=value", expr)
	}
	var value any
	if err := yamlv3.Unmarshal([]byte(raw), &value); err != nil || value == nil {
		value = raw
	}
	overrides[key] = value
	return nil
}
