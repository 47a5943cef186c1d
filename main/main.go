package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/benbjohnson/clock"

	"github.com/biotinker/roiplanner"
	"github.com/biotinker/roiplanner/internal/config"
	viewplanner "github.com/biotinker/roiplanner/view_planner"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/robot/client"
	"go.viam.com/utils/rpc"
)

func main() {
	configPath := flag.String("config", "", "path to the planner TOML config")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := logging.NewLogger("roiplanner")
	if *debug {
		logger = logging.NewDebugLogger("roiplanner")
	}

	if *configPath == "" {
		logger.Fatal("-config flag is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal(err)
	}
	if !cfg.HasRobot() {
		logger.Fatal("config has no [robot] section; use the cli for offline evaluation")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	machine, err := client.New(
		ctx,
		cfg.Robot.Address,
		logger,
		client.WithDialOptions(rpc.WithEntityCredentials(
			cfg.Robot.EntityID,
			rpc.Credentials{
				Type:    rpc.CredentialsTypeAPIKey,
				Payload: cfg.Robot.APIKey,
			})),
	)
	if err != nil {
		logger.Fatal(err)
	}
	defer machine.Close(context.Background())

	logger.Info("Connected to robot")
	logger.Info("Resources:", machine.ResourceNames())

	// The robot reads live settings from the planner, which needs the robot.
	var planner atomic.Pointer[roiplanner.Planner]
	settings := func() viewplanner.Settings {
		if p := planner.Load(); p != nil {
			return p.Context().Settings()
		}
		return cfg.Planner
	}
	r, err := roiplanner.NewRobot(machine, cfg.Components, settings, logger.Sublogger("robot"))
	if err != nil {
		logger.Fatal(err)
	}

	p, err := roiplanner.NewPlanner(ctx, cfg, r, clock.New(), logger)
	if err != nil {
		logger.Fatal(err)
	}
	planner.Store(p)
	defer func() {
		if err := p.Close(context.Background()); err != nil {
			logger.Warnf("Close: %v", err)
		}
	}()

	if err := roiplanner.Run(ctx, p); err != nil {
		logger.Error(err)
	}
}
