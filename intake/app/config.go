package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/m3rciful/enrollbot/core/config"
	coredatabase "github.com/m3rciful/enrollbot/core/database"
	"github.com/m3rciful/enrollbot/intake/submission"
)

// DefaultCourses is the course enumeration offered when none is configured.
var DefaultCourses = []string{"Python", "LEGO WeDo", "MINDSTORMS", "Arduino"}

// IntakeConfig tunes the intake conversation and its storage.
type IntakeConfig struct {
	DefaultLanguage string            `yaml:"default_language" envconfig:"INTAKE_DEFAULT_LANGUAGE"`
	Courses         []string          `yaml:"courses" envconfig:"INTAKE_COURSES"`
	Workers         int               `yaml:"workers" envconfig:"INTAKE_WORKERS"`
	QueueSize       int               `yaml:"queue_size" envconfig:"INTAKE_QUEUE_SIZE"`
	Sink            submission.Config `yaml:"sink"`
}

// Config is the full application configuration.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	Intake   IntakeConfig        `yaml:"intake"`
}

// CoreConfig exposes the embedded framework configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Core
}

// UsesDatabase reports whether submissions go to Postgres.
func (c *Config) UsesDatabase() bool {
	return c.Intake.Sink.Driver == submission.DriverPostgres
}

func defaultConfig() Config {
	return Config{
		Intake: IntakeConfig{
			Sink: submission.Config{Retries: 2},
		},
	}
}

// LoadConfig reads path, overlays the environment and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize fills intake and database defaults and validates them.
func (c *Config) Normalize() error {
	in := &c.Intake
	in.DefaultLanguage = strings.ToLower(strings.TrimSpace(in.DefaultLanguage))
	if in.DefaultLanguage == "" {
		in.DefaultLanguage = "ru"
	}

	courses := make([]string, 0, len(in.Courses))
	for _, course := range in.Courses {
		if course = strings.TrimSpace(course); course != "" {
			courses = append(courses, course)
		}
	}
	if len(courses) == 0 {
		courses = append(courses, DefaultCourses...)
	}
	in.Courses = courses

	if in.Workers <= 0 {
		in.Workers = 8
	}
	if in.QueueSize <= 0 {
		in.QueueSize = 64
	}

	in.Sink.Normalize()
	if err := in.Sink.Validate(); err != nil {
		return err
	}

	c.Database.Normalize()
	if c.UsesDatabase() {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("intake.sink.driver is postgres: %w", err)
		}
	}
	return nil
}
