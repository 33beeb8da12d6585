// Package config defines the job file consumed by the whatif CLI and the
// functions that load, normalize and validate it.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/iwvelando/whatif/internal/workbook"
	"github.com/iwvelando/whatif/pkg/constants"
	"github.com/iwvelando/whatif/pkg/validation"
	"github.com/spf13/viper"
)

// Configuration holds a complete what-if job: the workbook to load and the
// tools to run against it. Tool sections are optional.
type Configuration struct {
	Logging    LoggingConfig     `json:"logging,omitempty" yaml:"logging,omitempty" mapstructure:"logging"`
	Output     OutputConfig      `json:"output,omitempty" yaml:"output,omitempty" mapstructure:"output"`
	Workbook   workbook.Spec     `json:"workbook" yaml:"workbook" mapstructure:"workbook"`
	GoalSeek   *GoalSeekConfig   `json:"goalSeek,omitempty" yaml:"goalSeek,omitempty" mapstructure:"goalSeek"`
	Scenarios  *ScenariosConfig  `json:"scenarios,omitempty" yaml:"scenarios,omitempty" mapstructure:"scenarios"`
	Simulation *SimulationConfig `json:"simulation,omitempty" yaml:"simulation,omitempty" mapstructure:"simulation"`
	Solver     *SolverConfig     `json:"solver,omitempty" yaml:"solver,omitempty" mapstructure:"solver"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `json:"level,omitempty" yaml:"level,omitempty" mapstructure:"level"`                // debug, info, warn, error
	Format     string `json:"format,omitempty" yaml:"format,omitempty" mapstructure:"format"`             // json, console
	OutputFile string `json:"outputFile,omitempty" yaml:"outputFile,omitempty" mapstructure:"outputFile"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `json:"format,omitempty" yaml:"format,omitempty" mapstructure:"format"` // pretty, csv, json
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// job there. Settings can be overridden with WHATIF_ environment variables,
// e.g. WHATIF_OUTPUT_FORMAT=json.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}
	return decode(v)
}

// LoadConfigurationFromReader loads a YAML job from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config, %s", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	// Env overrides only reach keys present in the file, so the output
	// format is read explicitly.
	if format := v.GetString("output.format"); format != "" {
		configuration.Output.Format = format
	}
	configuration.Normalize()
	return &configuration, nil
}

// Normalize applies defaults to every configured section.
func (c *Configuration) Normalize() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
	if c.Output.Format == "" {
		c.Output.Format = constants.OutputFormatPretty
	}
	c.GoalSeek.Normalize()
	c.Scenarios.Normalize()
	c.Simulation.Normalize()
	c.Solver.Normalize()
}

// Validate checks the ambient settings and every configured tool section.
func (c *Configuration) Validate() error {
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
		return err
	}

	if c.GoalSeek != nil {
		if err := c.GoalSeek.Validate(); err != nil {
			return fmt.Errorf("goalSeek: %w", err)
		}
	}
	if c.Scenarios != nil {
		if err := c.Scenarios.Validate(); err != nil {
			return fmt.Errorf("scenarios: %w", err)
		}
	}
	if c.Simulation != nil {
		if err := c.Simulation.Validate(); err != nil {
			return fmt.Errorf("simulation: %w", err)
		}
	}
	if c.Solver != nil {
		if err := c.Solver.Validate(); err != nil {
			return fmt.Errorf("solver: %w", err)
		}
	}
	return nil
}

// Sections lists the configured tool sections in run order.
func (c *Configuration) Sections() []string {
	var out []string
	if c.GoalSeek != nil {
		out = append(out, SectionGoalSeek)
	}
	if c.Scenarios != nil {
		out = append(out, SectionScenarios)
	}
	if c.Simulation != nil {
		out = append(out, SectionSimulation)
	}
	if c.Solver != nil {
		out = append(out, SectionSolver)
	}
	return out
}

// Section names as they appear in job files.
const (
	SectionGoalSeek   = "goalSeek"
	SectionScenarios  = "scenarios"
	SectionSimulation = "simulation"
	SectionSolver     = "solver"
)
