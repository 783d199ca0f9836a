package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/gwillem/armseq/pkg/api"
	"github.com/gwillem/armseq/pkg/command"
	"github.com/gwillem/armseq/pkg/journal"
	"github.com/gwillem/armseq/pkg/logging"
	"github.com/gwillem/armseq/pkg/motion"
	"github.com/gwillem/armseq/pkg/robot"
	"github.com/gwillem/armseq/pkg/sequencer"
	"github.com/gwillem/armseq/pkg/transport"
)

type RunCommand struct {
	Program string `short:"p" long:"program" description:"Program file (YAML); the built-in demo when empty"`
	TUI     bool   `long:"tui" description:"Show joint positions and authority in a live chart"`
	Confirm bool   `long:"confirm" description:"Ask before the first frame is sent"`

	Args struct {
		Endpoint string `positional-arg-name:"ENDPOINT" description:"nats://host:port, serial:///dev/ttyX or sim"`
	} `positional-args:"yes" required:"yes"`
}

func (c *RunCommand) Execute(args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// The chart owns the terminal.
	if c.TUI {
		fileLogger, closeLog, err := logging.NewFile(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
		if err != nil {
			return err
		}
		defer closeLog()
		defer fileLogger.Sync()
		logger = fileLogger
	}

	// Reject a bad endpoint before touching anything else.
	ep, err := transport.ParseEndpoint(c.Args.Endpoint)
	if err != nil {
		return err
	}

	program, err := loadProgram(c.Program)
	if err != nil {
		return err
	}

	link, err := transport.Open(c.Args.Endpoint, *cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := link.Close(); err != nil {
			logger.Warn("Close link", zap.Error(err))
		}
	}()

	// SIGINT and SIGTERM interrupt the run; authority is still released.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var confirm func(robot.JointVector) (bool, error)
	if c.Confirm {
		confirm = func(current robot.JointVector) (bool, error) {
			return confirmStart(program, ep, cfg.Control.Tick, current)
		}
	}
	initial, ok, err := prepareStart(ctx, link, confirm)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Aborted.")
		return nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := sequencer.NewMetrics(registry)

	emitter := command.NewEmitter(link,
		command.WithGains(command.Gains{Kp: cfg.Control.Kp, Kd: cfg.Control.Kd, Tau: cfg.Control.Tau}),
		command.WithWeightSlot(cfg.Control.WeightSlot),
	)
	seq := sequencer.New(emitter, sequencer.Config{
		Tick:         cfg.Control.Tick,
		ReleaseSteps: cfg.Control.ReleaseSteps,
		Logger:       logger,
		Metrics:      metrics,
	})

	if cfg.HTTP.Addr != "" {
		srv := api.NewServer(seq, registry, logger)
		go func() {
			if err := srv.Start(cfg.HTTP.Addr); err != nil {
				logger.Error("HTTP server failed", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			shutdownHTTP(ctx, srv, logger)
		}()
	}

	var store *journal.Store
	var entry journal.Run
	if cfg.Journal.Path != "" {
		store, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer store.Close()
		entry, err = store.BeginRun(context.Background(), program.Name, ep.String(), len(program.Segments), program.TotalSteps())
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}

	var res sequencer.Result
	if c.TUI {
		res, err = runWithTUI(ctx, seq, program, initial)
	} else {
		res, err = seq.Run(ctx, program, initial)
	}

	outcome := outcomeOf(err)
	if store != nil {
		if jerr := store.FinishRun(context.Background(), entry.ID, outcome, res.Frames, err); jerr != nil {
			logger.Warn("Journal update failed", zap.Error(jerr))
		}
	}

	logger.Info("Run finished",
		zap.String("program", program.Name),
		zap.String("outcome", outcome),
		zap.Int("frames", res.Frames),
		zap.Float64("authority", res.Authority),
	)

	var sendErr *sequencer.SendError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &sendErr):
		return &exitError{code: 2, err: err}
	case errors.Is(err, sequencer.ErrInterrupted):
		// Released cleanly on request.
		return nil
	}
	return err
}

func outcomeOf(err error) string {
	var sendErr *sequencer.SendError
	switch {
	case err == nil:
		return journal.OutcomeCompleted
	case errors.As(err, &sendErr):
		return journal.OutcomeSendFailed
	case errors.Is(err, sequencer.ErrInterrupted):
		return journal.OutcomeInterrupted
	}
	return journal.OutcomeFailed
}

func loadProgram(path string) (motion.Program, error) {
	if path == "" {
		return motion.Demo(), nil
	}
	return motion.LoadProgram(path)
}

// prepareStart asks confirm, when set, with the current pose and then reads
// the seed pose. ok is false when the operator declined.
func prepareStart(ctx context.Context, src sequencer.PoseSource, confirm func(robot.JointVector) (bool, error)) (initial robot.JointVector, ok bool, err error) {
	if confirm != nil {
		current, err := src.Pose(ctx)
		if err != nil {
			return initial, false, fmt.Errorf("read pose: %w", err)
		}
		ok, err := confirm(current)
		if err != nil {
			return initial, false, fmt.Errorf("confirm: %w", err)
		}
		if !ok {
			return initial, false, nil
		}
	}

	// Seed after confirmation; the prompt may have been open for a while.
	initial, err = src.Pose(ctx)
	if err != nil {
		return initial, false, fmt.Errorf("seed pose: %w", err)
	}
	return initial, true, nil
}

func shutdownHTTP(ctx context.Context, srv interface{ Shutdown(context.Context) error }, logger *zap.Logger) {
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("Shutdown HTTP server", zap.Error(err))
	}
}

func confirmStart(p motion.Program, ep transport.Endpoint, tick time.Duration, pose robot.JointVector) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Run %q on %s?", p.Name, ep)).
				Description(fmt.Sprintf("%d segments, %d ticks, about %s.\nCurrent pose: %.3f\nMake sure the area around the arms is clear.",
					len(p.Segments), p.TotalSteps(), (time.Duration(p.TotalSteps())*tick).Round(100*time.Millisecond), pose)).
				Affirmative("Start").
				Negative("Cancel").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// runWithTUI runs the program in the background while the chart follows its
// state. Quitting the chart interrupts the run and waits for the release.
func runWithTUI(ctx context.Context, seq *sequencer.Sequencer, program motion.Program, initial robot.JointVector) (sequencer.Result, error) {
	type outcome struct {
		res sequencer.Result
		err error
	}
	done := make(chan outcome, 1)

	p := tea.NewProgram(newRunModel(seq, program), tea.WithAltScreen())
	go func() {
		res, err := seq.Run(ctx, program, initial)
		done <- outcome{res, err}
		p.Send(runDoneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		seq.Interrupt()
		o := <-done
		return o.res, errors.Join(o.err, fmt.Errorf("tui: %w", err))
	}
	o := <-done
	return o.res, o.err
}
