package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"storyweaver/harvester/internal/config"
	"storyweaver/harvester/internal/container"
	"storyweaver/harvester/internal/service"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

type globalOptions struct {
	Config string `short:"c" long:"config" env:"HARVEST_CONFIG" description:"Path to the YAML config file (default ./config.yaml)"`
}

var opts globalOptions

type runCommand struct {
	Interactive bool `short:"i" long:"interactive" description:"Pause on anti-bot challenges so they can be cleared by hand"`
}

type statusCommand struct{}

type resetCommand struct{}

type requeueCommand struct{}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.AddCommand("run", "Harvest the catalog",
		"Resume the persisted queue, or build a new one from the catalog, and process it.", &runCommand{})
	parser.AddCommand("status", "Print the persisted queue summary", "", &statusCommand{})
	parser.AddCommand("reset", "Archive the persisted queue so the next run starts fresh", "", &resetCommand{})
	parser.AddCommand("requeue-failed", "Give failed items a fresh attempt budget", "", &requeueCommand{})

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}

// withContainer loads config, builds the container and hands it to fn
func withContainer(fn func(ctx context.Context, app *container.Container) error) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	container.SetupLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := container.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer app.Close()

	return fn(ctx, app)
}

func (c *runCommand) Execute(_ []string) error {
	return withContainer(func(ctx context.Context, app *container.Container) error {
		log.Info("Starting StoryWeaver harvester...")
		if c.Interactive {
			app.Service.SetAntiBotHook(service.NewPromptHook(os.Stdin, os.Stderr))
		}

		summary, err := app.Run(ctx)
		if err != nil {
			return fmt.Errorf("harvest aborted: %w", err)
		}
		if summary.Failed > 0 {
			log.Warnf("⚠️ Finished with %d failed items; run requeue-failed to retry them", summary.Failed)
		}
		log.Info("Harvester finished")
		return nil
	})
}

func (c *statusCommand) Execute(_ []string) error {
	return withContainer(func(ctx context.Context, app *container.Container) error {
		st, err := app.Service.Status(ctx)
		if errors.Is(err, service.ErrNoQueue) {
			fmt.Println("No persisted queue; run the harvester to create one.")
			return nil
		}
		if err != nil {
			return err
		}
		service.WriteStatus(os.Stdout, st)
		return nil
	})
}

func (c *resetCommand) Execute(_ []string) error {
	return withContainer(func(ctx context.Context, app *container.Container) error {
		archived, err := app.Service.Reset(ctx)
		if err != nil {
			return err
		}
		if archived == "" {
			log.Info("Nothing to reset")
			return nil
		}
		log.Infof("🗄️ Previous queue archived as %s", archived)
		return nil
	})
}

func (c *requeueCommand) Execute(_ []string) error {
	return withContainer(func(ctx context.Context, app *container.Container) error {
		n, err := app.Service.RequeueFailed(ctx)
		if err != nil {
			return err
		}
		log.Infof("🔁 Requeued %d failed items", n)
		return nil
	})
}
