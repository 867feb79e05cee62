package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/services"
	"ndilive/internal/infrastructure/ndi"
	"ndilive/pkg/config"
	"ndilive/pkg/logger"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagConfig   string
	flagSimulate bool
	flagWait     time.Duration
	flagWatch    bool
	flagJSON     bool
	flagGroups   string
	flagExtraIPs []string
	flagHelp     bool
)

func init() {
	flag.StringVarP(&flagConfig, "config", "c", "", "Configuration file")
	flag.BoolVarP(&flagSimulate, "simulate", "s", false, "Use the simulated transport")
	flag.DurationVarP(&flagWait, "wait", "w", 3*time.Second, "How long to collect sources before printing")
	flag.BoolVarP(&flagWatch, "watch", "", false, "Keep running and print every change")
	flag.BoolVarP(&flagJSON, "json", "j", false, "Print JSON instead of a table")
	flag.StringVarP(&flagGroups, "groups", "g", "", "Comma separated groups to search")
	flag.StringSliceVarP(&flagExtraIPs, "extra-ip", "x", nil, "Additional address to query, may repeat")
	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
}

func main() {
	flag.Parse()
	if flagHelp {
		fmt.Fprintln(os.Stderr, "Usage: ndi-sources [OPTION]...")
		flag.PrintDefaults()
		return
	}
	if err := run(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "ndi-sources: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagSimulate {
		cfg.NDI.Simulate = true
	}
	if flagGroups != "" {
		cfg.Discovery.Groups = flagGroups
	}
	cfg.Discovery.ExtraIPs = append(cfg.Discovery.ExtraIPs, flagExtraIPs...)

	zapLogger, err := logger.New("warn", "console")
	if err != nil {
		return err
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	transport := ndi.NewTransport(cfg, log)
	if err := transport.Initialize(); err != nil {
		return fmt.Errorf("initialize transport: %w", err)
	}
	defer transport.Destroy()

	registry := services.NewDiscoveryRegistry(transport, services.MonitorOptions{
		Discovery: services.DiscoveryOptions{
			Find:         ndi.FindOptionsFromConfig(cfg),
			PollInterval: cfg.Discovery.PollInterval,
			Logger:       log,
		},
		RefreshInterval: cfg.Discovery.RefreshInterval,
		Logger:          log,
	})
	defer registry.Close()

	monitor, err := registry.Shared()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !flagWatch {
		select {
		case <-time.After(flagWait):
		case <-ctx.Done():
		}
		return printSources(monitor.Sources())
	}

	for sources := range monitor.Watch(ctx) {
		if err := printSources(sources); err != nil {
			return err
		}
	}
	return nil
}

func printSources(sources []domain.Source) error {
	if flagJSON {
		return json.NewEncoder(os.Stdout).Encode(sources)
	}

	header := color.New(color.FgCyan, color.Bold)
	name := color.New(color.FgYellow)

	header.Printf("%s  %d source(s)\n", time.Now().Format(time.TimeOnly), len(sources))
	if len(sources) == 0 {
		color.New(color.Faint).Println("  no sources found")
		return nil
	}
	width := 0
	for _, s := range sources {
		width = max(width, len(s.Name))
	}
	for _, s := range sources {
		name.Printf("  %s", s.Name)
		fmt.Printf("%s  %s\n", strings.Repeat(" ", width-len(s.Name)), s.URL)
	}
	return nil
}
