// Command ctrlgen synthesizes state feedback loops for motor driven mechanisms
// and writes them out as coefficient factories for the StateFeedbackLoop runtime.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/codegen"
	"github.com/milosgajdos/go-control/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type app struct {
	configFile string
	preset     string
	plotFile   string
	ascii      bool
	scenario   string
	verbose    bool
	logger     *zap.Logger
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true

	return cfg.Build()
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ctrlgen",
		Short:         "state feedback controller and observer generator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return nil
			}
			l, err := newLogger(a.verbose)
			if err != nil {
				return err
			}
			a.logger = l
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log synthesis diagnostics")

	generateCmd := &cobra.Command{
		Use:   "generate [flags] FILE...",
		Short: "synthesize loops and write header, source and optional JSON files",
		Long: `Synthesize the loops of a target and write them out.

Single-axis and flywheel targets write the plant bundle and the voltage error augmented
bundle: 2 bundles of header, source and optional JSON, i.e. 4 or 6 files.
Drivetrain targets write the position, voltage error augmented and velocity bundles,
i.e. 6 or 9 files.

With --plot or --ascii the target is simulated instead and no files are written.`,
		RunE: a.generate,
	}
	generateCmd.Flags().StringVarP(&a.configFile, "config", "c", "", "YAML target file")
	generateCmd.Flags().StringVarP(&a.preset, "preset", "p", "", "built-in target: "+strings.Join(config.PresetNames(), ", "))
	generateCmd.Flags().StringVar(&a.plotFile, "plot", "", "simulate the target and save the plots to this PNG file")
	generateCmd.Flags().BoolVar(&a.ascii, "ascii", false, "simulate the target and print the plots to the terminal")
	generateCmd.Flags().StringVar(&a.scenario, "scenario", scenarioKick, "simulated scenario: "+strings.Join(scenarios, ", "))

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.PresetNames() {
				c, err := config.Preset(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", name, c.Kind)
			}
			return nil
		},
	}

	rootCmd.AddCommand(generateCmd, presetsCmd)

	return rootCmd
}

func (a *app) target() (*config.Config, error) {
	switch {
	case a.configFile != "" && a.preset != "":
		return nil, errors.Wrap(control.ErrInterface, "--config and --preset are mutually exclusive")
	case a.configFile != "":
		return config.Load(a.configFile)
	case a.preset != "":
		return config.Preset(a.preset)
	default:
		return nil, errors.Wrap(control.ErrInterface, "either --config or --preset is required")
	}
}

func (a *app) generate(cmd *cobra.Command, files []string) error {
	c, err := a.target()
	if err != nil {
		if errors.Is(err, control.ErrInterface) {
			cmd.Usage()
		}
		return err
	}

	if a.plotFile != "" || a.ascii {
		if len(files) != 0 {
			return errors.Wrap(control.ErrInterface, "plot mode writes no files")
		}
		return a.plot(cmd, c)
	}

	if _, err := codegen.SplitFiles(files, c.Stages()); err != nil {
		cmd.Usage()
		return err
	}

	opts := []codegen.Option{
		codegen.WithLogger(a.logger),
		codegen.WithPlantType(c.PlantType),
		codegen.WithObserverType(c.ObserverType),
		codegen.WithScalarType(c.ScalarType),
	}

	switch c.Kind {
	case config.KindDrivetrain:
		p, err := c.DrivetrainParams()
		if err != nil {
			return err
		}
		return codegen.WriteDrivetrain(p, files, c.Namespaces, opts...)
	case config.KindFlywheel:
		fp, err := c.FlywheelParams()
		if err != nil {
			return err
		}
		return codegen.WriteFlywheel(fp, files, c.Namespaces, opts...)
	}

	params, err := c.Params()
	if err != nil {
		return err
	}

	return codegen.WriteSingleAxis(params, codegen.Kind(c.Kind), files, c.Namespaces, opts...)
}

func main() {
	a := &app{}

	if err := newRootCmd(a).Execute(); err != nil {
		if a.logger == nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		a.logger.Error("ctrlgen failed", zap.Error(err))
		a.logger.Sync()
		os.Exit(1)
	}

	if a.logger != nil {
		a.logger.Sync()
	}
}
