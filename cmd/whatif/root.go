package main

import (
	"fmt"

	"github.com/iwvelando/whatif/internal/config"
	"github.com/iwvelando/whatif/internal/runner"
	"github.com/iwvelando/whatif/pkg/constants"
	"github.com/iwvelando/whatif/pkg/output"
	"github.com/iwvelando/whatif/pkg/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configFile   string
	outputFormat string
	logLevel     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "whatif",
		Short: "What-if analysis over spreadsheet-style models",
		Long: `whatif runs goal seek, scenario, Monte Carlo and solver analyses
against a workbook declared in a YAML job file, or serves the same tools
over HTTP.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", constants.DefaultConfigFile, "path to job file")
	root.PersistentFlags().StringVar(&opts.outputFormat, "output-format", "", "output format override: pretty, csv, json")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newSectionCmd(opts, "goalseek", "Find the input that drives a cell to a target", config.SectionGoalSeek),
		newSectionCmd(opts, "scenarios", "Build a scenario summary report", config.SectionScenarios),
		newSectionCmd(opts, "simulate", "Run a Monte Carlo simulation", config.SectionSimulation),
		newSectionCmd(opts, "solve", "Optimize an objective cell under constraints", config.SectionSolver),
		newRunCmd(opts),
		newServeCmd(opts),
	)
	return root
}

func newSectionCmd(opts *rootOptions, use, short, section string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, opts, section)
		},
	}
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every configured section of the job file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, opts)
		},
	}
}

// runJob loads the job file and runs the given sections, or every
// configured section when none are given.
func runJob(cmd *cobra.Command, opts *rootOptions, sections ...string) error {
	conf, err := config.LoadConfiguration(opts.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration at %s: %w", opts.configFile, err)
	}

	logger, err := initializeLogger(conf.Logging, opts.logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// CLI override takes precedence over config
	outputFormat := conf.Output.Format
	if opts.outputFormat != "" {
		outputFormat = opts.outputFormat
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		return err
	}

	r, err := runner.NewRunner(logger, conf)
	if err != nil {
		return err
	}

	var result *runner.Result
	if len(sections) == 0 {
		result, err = r.Run()
	} else {
		result, err = r.RunSections(sections...)
	}
	if err != nil {
		logger.Error("job failed",
			zap.String("op", "main.runJob"),
			zap.String("config", opts.configFile),
			zap.Error(err),
		)
		return err
	}
	if result.Empty() {
		logger.Warn("job file configures no sections",
			zap.String("op", "main.runJob"),
			zap.String("config", opts.configFile),
		)
	}

	return output.Write(cmd.OutOrStdout(), outputFormat, result)
}
