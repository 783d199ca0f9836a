package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/gwillem/armseq/pkg/logging"
	"github.com/gwillem/armseq/pkg/robot"
)

type Options struct {
	Config string `short:"c" long:"config" default:"armseq.yaml" description:"Config file (YAML); ARMSEQ_* environment variables override it"`

	Run      RunCommand      `command:"run" description:"Run a motion program against an endpoint"`
	Validate ValidateCommand `command:"validate" description:"Check a program file and print its segments"`
	Setup    SetupCommand    `command:"setup" description:"Find the servo bench and calibrate it"`
	History  HistoryCommand  `command:"history" description:"List recent runs from the journal"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	parser.LongDescription = "armseq - sequence joint trajectories for a two-arm robot"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config and builds the logger.
func loadConfig() (*robot.Config, *zap.Logger, error) {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if robot.ConfigExists(opts.Config) {
		logger.Debug("Loaded configuration", zap.String("path", opts.Config))
	} else {
		logger.Debug("No config file, using defaults", zap.String("path", opts.Config))
	}
	return cfg, logger, nil
}
