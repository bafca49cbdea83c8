// Package main is the entry point for the closuretrace binary.
// It inspects the effective closure filter configuration and evaluates
// inclusion decisions without running a host application.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/polisai/closure-trace/pkg/config"
	"github.com/polisai/closure-trace/pkg/hook"
	"github.com/polisai/closure-trace/pkg/logging"
	"github.com/polisai/closure-trace/pkg/symbols"
	"github.com/polisai/closure-trace/pkg/telemetry"
	"github.com/polisai/closure-trace/pkg/tracer"
)

// CLIConfig holds the parsed CLI configuration
type CLIConfig struct {
	Config     string
	LogLevel   string
	Debug      bool
	Base       string
	SearchPath []string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for closuretrace
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "closuretrace",
		Short: "Inspect the closure tracer configuration",
		Long: `closuretrace loads the closure tracer's filter configuration the same way a
host process does: the base properties resource first, then every
closuretrace.properties found on the search path, merged in order.

Example:
  closuretrace config --search-path ./conf
  closuretrace check --declaring example.com/app.Build --interface 'func()'`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to configuration file (YAML)")
	flags.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.Bool("debug", false, "Log one line per registration")
	flags.String("base", "", "Base properties file (defaults to the embedded defaults)")
	flags.StringSlice("search-path", nil, "Directories searched for closuretrace.properties")

	rootCmd.AddCommand(newConfigCmd(), newCheckCmd(), newDemoCmd())
	return rootCmd
}

// parseCLIConfig parses command line flags and returns a CLIConfig
func parseCLIConfig(cmd *cobra.Command) (*CLIConfig, error) {
	flags := cmd.Flags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}
	debug, err := flags.GetBool("debug")
	if err != nil {
		return nil, fmt.Errorf("failed to get debug flag: %w", err)
	}
	base, err := flags.GetString("base")
	if err != nil {
		return nil, fmt.Errorf("failed to get base flag: %w", err)
	}
	searchPath, err := flags.GetStringSlice("search-path")
	if err != nil {
		return nil, fmt.Errorf("failed to get search-path flag: %w", err)
	}

	return &CLIConfig{
		Config:     configPath,
		LogLevel:   logLevel,
		Debug:      debug,
		Base:       base,
		SearchPath: searchPath,
	}, nil
}

// buildConfig loads the configuration file and applies CLI flag overrides
func buildConfig(cli *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}

	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.Debug {
		cfg.Debug = true
	}
	if cli.Base != "" {
		cfg.Filter.BaseFile = cli.Base
	}
	if len(cli.SearchPath) > 0 {
		cfg.Filter.SearchPath = cli.SearchPath
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// environment is what every subcommand starts from.
type environment struct {
	cfg    *config.Config
	logger *slog.Logger
	filter *config.Filter
}

func setup(cmd *cobra.Command) (*environment, error) {
	cli, err := parseCLIConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := buildConfig(cli)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})

	filter, err := config.LoadFilter(cfg.FilterOptions()...)
	if err != nil {
		logger.Error("Failed to load filter configuration", "error", err)
		return nil, err
	}
	logger.Debug("Filter configuration loaded", "sources", filter.Sources())

	return &environment{cfg: cfg, logger: logger, filter: filter}, nil
}

func (e *environment) registry(opts ...tracer.Option) *tracer.Registry {
	opts = append([]tracer.Option{tracer.WithLogger(e.logger), tracer.WithDebug(e.cfg.Debug)}, opts...)
	return tracer.New(e.filter, opts...)
}

// effectiveConfig is the YAML document printed by the config command.
type effectiveConfig struct {
	Sources          []string          `yaml:"sources"`
	Properties       map[string]string `yaml:"properties"`
	LambdaIncludes   config.Set        `yaml:"lambda_includes"`
	PackageIncludes  config.Set        `yaml:"package_includes"`
	ArgumentIncludes config.Set        `yaml:"argument_includes,omitempty"`
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the merged filter configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), effectiveConfig{
				Sources:          env.filter.Sources(),
				Properties:       env.filter.Properties(),
				LambdaIncludes:   env.filter.LambdaIncludes(),
				PackageIncludes:  env.filter.PackageIncludes(),
				ArgumentIncludes: env.filter.ParseArgumentOverrides(env.cfg.Filter.PackageIncludes),
			})
		},
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report whether a closure would be traced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			declaring, _ := cmd.Flags().GetString("declaring")
			iface, _ := cmd.Flags().GetString("interface")
			args, _ := cmd.Flags().GetString("args")
			if !cmd.Flags().Changed("args") {
				args = env.cfg.Filter.PackageIncludes
			}

			table := symbols.NewTable("check")
			included := env.registry().IsIncluded(table.Define(declaring), table.Define(iface), args)

			verdict := "skipped"
			if included {
				verdict = "included"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s@%s\n", verdict, declaring, iface)
			return err
		},
	}
	cmd.Flags().String("declaring", "", "Declaring function name, e.g. example.com/app.Build")
	cmd.Flags().String("interface", "", "Functional interface type name, e.g. 'func() error'")
	cmd.Flags().String("args", "", "Registration argument (comma separated package prefixes)")
	_ = cmd.MarkFlagRequired("declaring")
	_ = cmd.MarkFlagRequired("interface")
	return cmd
}

func newDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Trace a closure in this binary and print its creation site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			withMetrics, _ := cmd.Flags().GetBool("metrics")
			return runDemo(cmd.OutOrStdout(), env, withMetrics)
		},
	}
	cmd.Flags().Bool("metrics", false, "Print the registry counters after the run")
	return cmd
}

func runDemo(w io.Writer, env *environment, withMetrics bool) error {
	// trace closures declared in this package, whatever its symbol prefix
	self, _, err := symbols.FuncName(runDemo)
	if err != nil {
		return err
	}
	pkg, _ := tracer.SplitPackage(self)
	const registryID = "demo"
	prom := telemetry.NewPrometheusRecorder(registryID)
	promRegistry := prometheus.NewRegistry()
	if err := promRegistry.Register(prom); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	reg := env.registry(
		tracer.WithID(registryID),
		tracer.WithJournal(16),
		tracer.WithRecorder(telemetry.Recorders{telemetry.OTelRecorder{RegistryID: registryID}, prom}),
	)
	h := hook.Install(reg, hook.WithLogger(env.logger), hook.WithArgs(pkg+"."))

	greet := hook.Trace(h, func() {})
	greet()

	frame, ok := h.Lookup(greet)
	if !ok {
		_, err = fmt.Fprintln(w, "closure was not traced; is 'func()' in lambda.includes?")
		return err
	}
	if _, err = fmt.Fprintf(w, "closure created at %s\n", frame); err != nil {
		return err
	}
	if _, err = fmt.Fprintf(w, "registry %s holds %d trace(s)\n", reg.ID(), reg.Len()); err != nil {
		return err
	}
	for _, d := range reg.Recent() {
		if _, err = fmt.Fprintf(w, "#%d %s %s (%s)\n", d.Sequence, d.Outcome, d.Synthetic, d.Interface); err != nil {
			return err
		}
	}
	if withMetrics {
		return writeCounters(w, promRegistry)
	}
	return nil
}

// writeCounters prints every counter sample as "name{label="value",...} value".
func writeCounters(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
			}
			if _, err := fmt.Fprintf(w, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue()); err != nil {
				return err
			}
		}
	}
	return nil
}
