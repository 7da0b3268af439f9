package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/playbookd/sourcekit/internal/api"
	"github.com/playbookd/sourcekit/internal/assets"
	"github.com/playbookd/sourcekit/internal/config"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/internal/sources"
	"github.com/playbookd/sourcekit/internal/tracing"
	"github.com/playbookd/sourcekit/pkg/logger"
)

const version = "v1.2.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "test-connection":
		runTestConnection(os.Args[2:])
	case "execute":
		runExecute(os.Args[2:])
	case "version":
		fmt.Println("sourcekit", version)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: sourcekit <command>

commands:
  serve                              start the task execution API server
  test-connection --connector NAME   verify a connector's credentials
  execute --task FILE                run one task from a JSON file
  version                            print the version`)
}

// bootstrap loads config and wires the shared infrastructure every
// command needs.
func bootstrap() (*config.Config, logger.Logger, *sources.Registry, *config.ConnectorStore) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.LogLevel)

	connectors, err := config.LoadConnectors(cfg.ConnectorsFile)
	if err != nil {
		logg.Fatal("Failed to load connectors", "file", cfg.ConnectorsFile, "error", err)
	}
	store := config.NewConnectorStore(connectors)

	deps := sources.Deps{
		Logger: logg,
		Assets: assets.NewStore(cfg.Cache, logg),
		Cfg:    cfg.Upstream,
	}
	return cfg, logg, sources.NewDefaultRegistry(deps), store
}

func runServe() {
	cfg, logg, registry, store := bootstrap()
	logg.Info("Starting sourcekit", "version", version, "environment", cfg.Environment)

	if cfg.Tracing.Enabled {
		tp, err := tracing.NewTracerProvider("sourcekit", version, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			logg.Fatal("Failed to initialize tracing", "error", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logg.Error("Failed to shut down tracer provider", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hot-reload connector credentials on file change.
	watcher := config.NewConnectorWatcher(cfg.ConnectorsFile, logg)
	watcher.OnReload(store.Replace)
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logg.Error("Connector watcher stopped", "error", err)
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logg.Info("Shutdown signal received")
		cancel()
	}()

	apiServer := api.NewServer(cfg, logg, registry, store)
	if err := apiServer.Start(ctx); err != nil {
		logg.Fatal("Server failed", "error", err)
	}

	logg.Info("sourcekit shutdown complete")
}

func runTestConnection(args []string) {
	fs := flag.NewFlagSet("test-connection", flag.ExitOnError)
	name := fs.String("connector", "", "connector name to test (empty tests all)")
	fs.Parse(args)

	_, _, registry, store := bootstrap()

	connectors := store.List()
	if *name != "" {
		connector, ok := store.Get(*name)
		if !ok {
			color.Red("unknown connector: %s", *name)
			os.Exit(1)
		}
		connectors = []models.Connector{connector}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	failed := 0
	for _, connector := range connectors {
		err := registry.TestConnection(ctx, &connector)
		if err != nil {
			color.Red("✗ %s (%s): %v", connector.Name, connector.Type, err)
			failed++
			continue
		}
		color.Green("✓ %s (%s)", connector.Name, connector.Type)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func runExecute(args []string) {
	fs := flag.NewFlagSet("execute", flag.ExitOnError)
	taskFile := fs.String("task", "", "path to a JSON file holding the task")
	connectorName := fs.String("connector", "", "connector to execute against")
	lastHours := fs.Int64("last-hours", 1, "time window when the task has none")
	fs.Parse(args)

	if *taskFile == "" || *connectorName == "" {
		color.Red("execute requires --task and --connector")
		os.Exit(2)
	}

	_, logg, registry, store := bootstrap()

	raw, err := os.ReadFile(*taskFile)
	if err != nil {
		logg.Fatal("Failed to read task file", "file", *taskFile, "error", err)
	}
	var task models.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		logg.Fatal("Failed to parse task file", "file", *taskFile, "error", err)
	}
	if !task.TimeRange.Valid() {
		task.TimeRange = models.LastHours(time.Now(), *lastHours)
	}

	connector, ok := store.Get(*connectorName)
	if !ok {
		color.Red("unknown connector: %s", *connectorName)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	results, err := registry.Execute(ctx, &task, &connector)
	if err != nil {
		color.Red("execution failed: %v", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		logg.Fatal("Failed to encode results", "error", err)
	}
	fmt.Println(string(out))
}
