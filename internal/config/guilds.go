package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/epilink/epilink/pkg/domain/guild"
)

// GuildsFile is the YAML document holding the administrator's guild role
// mappings and declarative rule specs. It is read once at startup; changing
// it requires a restart.
type GuildsFile struct {
	Global GlobalSpec  `yaml:"global"`
	Rules  []RuleSpec  `yaml:"rules" validate:"dive"`
	Guilds []GuildSpec `yaml:"guilds" validate:"required,min=1,dive"`
}

// GlobalSpec holds settings applying to every guild.
type GlobalSpec struct {
	// StickyRoles lists platform role IDs never removed by automatic
	// reconciliation on any guild.
	StickyRoles []string `yaml:"sticky_roles"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RuleSpec declares a rule built by the rule factory.
type RuleSpec struct {
	Name string `yaml:"name" validate:"required"`
	Type string `yaml:"type" validate:"required,oneof=email_domain"`

	// Cache is the per-rule result TTL; zero disables caching.
	Cache Duration `yaml:"cache"`

	// Domains and Roles configure the email_domain rule type: a verified
	// identity whose email domain matches grants the listed roles.
	Domains []string `yaml:"domains" validate:"required,min=1,dive,required"`
	Roles   []string `yaml:"roles" validate:"required,min=1,dive,required"`
}

// GuildSpec is one monitored guild.
type GuildSpec struct {
	ID            string            `yaml:"id" validate:"required"`
	Roles         map[string]string `yaml:"roles" validate:"required,min=1"`
	Rules         []string          `yaml:"rules"`
	StickyRoles   []string          `yaml:"sticky_roles"`
	EnableWelcome bool              `yaml:"enable_welcome"`
}

// LoadGuildsFile reads and validates the guild configuration document.
func LoadGuildsFile(path string) (*GuildsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read guilds file: %w", err)
	}

	var gf GuildsFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("parse guilds file: %w", err)
	}

	if err := validator.New().Struct(&gf); err != nil {
		return nil, fmt.Errorf("invalid guilds file: %w", err)
	}

	return &gf, nil
}

// Mapping converts the document into the immutable domain mapping.
func (gf *GuildsFile) Mapping() (*guild.Mapping, error) {
	configs := make([]*guild.Config, 0, len(gf.Guilds))
	for _, spec := range gf.Guilds {
		configs = append(configs, &guild.Config{
			ID:            spec.ID,
			Roles:         spec.Roles,
			Rules:         spec.Rules,
			StickyRoles:   spec.StickyRoles,
			EnableWelcome: spec.EnableWelcome,
		})
	}
	return guild.NewMapping(gf.Global.StickyRoles, configs...)
}
