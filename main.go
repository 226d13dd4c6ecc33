package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/the-lightning-land/theracd/api"
	"github.com/the-lightning-land/theracd/console"
	"github.com/the-lightning-land/theracd/control"
	"github.com/the-lightning-land/theracd/demo"
	"github.com/the-lightning-land/theracd/machine"
	"github.com/the-lightning-land/theracd/metrics"
	"golang.org/x/sync/errgroup"

	// Blank import to set up profiling HTTP handlers.
	_ "net/http/pprof"
)

var (
	// commit stores the current commit hash of this build. This should be set using -ldflags during compilation.
	Commit string
	// version stores the version string of this build. This should be set using -ldflags during compilation.
	Version string
	// date stores the date of this build. This should be set using -ldflags during compilation.
	Date string
)

// theracdMain is the true entry point for theracd. This is required since defers
// created in the top-level scope of a main method aren't executed if os.Exit() is called.
func theracdMain() error {
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	// Load CLI configuration and defaults
	cfg, err := loadConfig()
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		return nil
	} else if err != nil {
		return errors.Errorf("Failed parsing arguments: %v", err)
	}

	// Set logger into debug mode if called with --debug
	logger := newLogger(os.Stdout, cfg.Debug)
	if cfg.Debug {
		log.Info("Setting debug mode.")
	}

	log.Debug("Loaded config.")

	// Print version of the daemon
	log.Infof("Version %s (commit %s)", Version, Commit)
	log.Infof("Built on %s", Date)

	// Stop here if only version was requested
	if cfg.ShowVersion {
		return nil
	}

	mode, err := control.ParseMode(cfg.Mode)
	if err != nil {
		return errors.Errorf("Invalid mode: %v", err)
	}

	if mode == control.Unsynchronized {
		log.Warn("Running UNSYNCHRONIZED: the historical race condition and counter overflow are active.")
	} else {
		log.Info("Running SYNCHRONIZED: mode changes wait for the turntable and the setup counter does not wrap.")
	}

	if cfg.Profiling.Listen != "" {
		go func() {
			log.Infof("Starting profiling server on %v", cfg.Profiling.Listen)
			// Redirect the root path
			http.Handle("/", http.RedirectHandler("/debug/pprof", http.StatusSeeOther))
			// All other handlers are registered on DefaultServeMux through the import of pprof
			err := http.ListenAndServe(cfg.Profiling.Listen, nil)
			if err != nil {
				log.Errorf("Could not run profiler: %v", err)
			}
		}()
	}

	// The turntable hardware
	var t machine.Turntable

	switch cfg.Turntable {
	case "raspberry":
		t = machine.NewRaspberryTurntable(&machine.RaspberryTurntableConfig{
			MotorPin:     cfg.Raspberry.MotorPin,
			DirectionPin: cfg.Raspberry.DirectionPin,
			DetentPin:    cfg.Raspberry.DetentPin,
			Logger:       logger.WithField("system", "turntable"),
		})

		log.Infof("Created Raspberry Pi turntable on motor pin %v, direction pin %v and detent pin %v.",
			cfg.Raspberry.MotorPin, cfg.Raspberry.DirectionPin, cfg.Raspberry.DetentPin)
	case "simulated":
		t = machine.NewSimulatedTurntable(&machine.SimulatedTurntableConfig{
			Travel: control.Units(cfg.TimeUnit, control.TurntableTravelUnits),
			Logger: logger.WithField("system", "turntable"),
		})

		log.Info("Created a simulated turntable.")
	default:
		return errors.Errorf("Unknown turntable type %v", cfg.Turntable)
	}

	if err := t.Start(); err != nil {
		return errors.Errorf("Could not start turntable: %v", err)
	}

	defer func() {
		err := t.Stop()
		if err != nil {
			log.Errorf("Could not properly stop turntable: %v", err)
		} else {
			log.Infof("Stopped turntable.")
		}
	}()

	controlLog := logger.WithField("system", "control")

	newControl := func() *control.ControlModule {
		return control.New(&control.Config{
			Mode:      mode,
			Turntable: t,
			TimeUnit:  cfg.TimeUnit,
			Logger:    controlLog,
		})
	}

	if err := runScenarios(cfg, newControl, logger.WithField("system", "demo")); err != nil {
		return err
	}

	if !cfg.Serve && cfg.Scenario != "interactive" {
		return nil
	}

	recorder := metrics.New()

	// owns the control module operators and api clients work with
	c := console.New(&console.Config{
		NewControl: newControl,
		Metrics:    recorder,
		Logger:     logger.WithField("system", "console"),
	})

	log.Infof("Created console.")

	defer func() {
		c.Close()
		log.Info("Closed console.")
	}()

	if cfg.Scenario == "interactive" && !cfg.Serve {
		return demo.Interactive(c, os.Stdin, os.Stdout)
	}

	a := api.New(&api.Config{
		Console:        c,
		Metrics:        recorder.Handler(),
		MaxConnections: cfg.MaxConns,
		Log:            logger.WithField("system", "api"),
	})

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return errors.Errorf("Api unable to listen on %v: %v", cfg.Listen, err)
	}

	log.Infof("Serving api on %v", lis.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return a.Serve(lis)
	})

	// Handle interrupt signals correctly
	g.Go(func() error {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt)
		defer signal.Stop(signals)

		select {
		case sig := <-signals:
			log.Info(sig)
			log.Info("Received an interrupt, stopping theracd...")
			return lis.Close()
		case <-ctx.Done():
			return nil
		}
	})

	// the console blocks on stdin, so it is not part of the group
	if cfg.Scenario == "interactive" {
		go func() {
			err := demo.Interactive(c, os.Stdin, os.Stdout)
			if err != nil {
				log.Errorf("Interactive console failed: %v", err)
			}

			lis.Close()
		}()
	}

	// blocks until the api is shut down
	err = g.Wait()
	if err != nil {
		return errors.Errorf("Failed serving api: %v", err)
	}

	// finish with no error
	return nil
}

func runScenarios(cfg *config, newControl func() *control.ControlModule, demoLog *log.Entry) error {
	var scenarios []*demo.Scenario

	switch cfg.Scenario {
	case "none", "interactive":
		return nil
	case "all":
		scenarios = demo.Scenarios
	default:
		s, err := demo.ScenarioById(cfg.Scenario)
		if err != nil {
			return errors.Errorf("Invalid scenario: %v", err)
		}
		scenarios = []*demo.Scenario{s}
	}

	d := demo.New(&demo.Config{
		NewControl: newControl,
		TimeUnit:   cfg.TimeUnit,
		Logger:     demoLog,
	})

	outcomes, err := d.RunAll(scenarios)
	if err != nil {
		return errors.Errorf("Could not run scenarios: %v", err)
	}

	for _, o := range outcomes {
		log.WithFields(log.Fields{
			"scenario": o.Scenario.Id,
			"results":  o.Results,
			"dose":     o.Status.Dose,
			"accident": o.Accident(),
		}).Info(o.Scenario.Name)
	}

	accidents := demo.Accidents(outcomes)

	log.WithFields(log.Fields{
		"mode":      cfg.Mode,
		"scenarios": len(outcomes),
		"accidents": accidents,
	}).Info("Simulation summary")

	if accidents > 0 {
		log.Error("These defects would have delivered lethal doses to patients.")
	} else {
		log.Info("Safety interlocks prevented every accident.")
	}

	return nil
}

// newLogger configures the standard logger. Every subsystem derives its
// entry from it, so --debug and the output apply everywhere.
func newLogger(out io.Writer, debug bool) *log.Logger {
	logger := log.StandardLogger()
	logger.SetOutput(out)

	if debug {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}

	return logger
}

func main() {
	// Call the "real" main in a nested manner so the defers will properly
	// be executed in the case of a graceful shutdown.
	if err := theracdMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		} else {
			log.WithError(err).Println("Failed running theracd.")
		}
		os.Exit(1)
	}
}
