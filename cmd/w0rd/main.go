// Command w0rd runs the living system engine: an autonomous garden
// organism that plants wishes, grows them into fractal trees, and
// tends itself through seasons, dreams, and healing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"w0rd/internal/config"
	"w0rd/internal/hormones"
	"w0rd/internal/llm"
	"w0rd/internal/logging"
	"w0rd/internal/organism"
	"w0rd/internal/server"
	"w0rd/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "w0rd",
	Short: "w0rd - Living System Engine",
	Long: `w0rd is an autonomous garden organism.

Plant a wish and it distills the essence, grows a fractal intention
tree, defends itself with an ethical immune system, and keeps living
on its own: watering, harvesting, dreaming, and healing through the
turning seasons.

Run "w0rd serve" to open the garden gate.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Awaken the organism and serve the garden gate",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "w0rd.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(plantCmd)
	rootCmd.AddCommand(pulseCmd)
	rootCmd.AddCommand(statusCmd)
}

// garden bundles everything a command needs to touch the organism.
type garden struct {
	cfg    *config.Config
	store  *store.Store
	bus    *hormones.Bus
	cortex *llm.Client
	org    *organism.Organism
}

func (g *garden) close() {
	g.store.Close()
	logging.CloseAll()
}

func openGarden() (*garden, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Logging.Debug = true
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logging.Initialize(cfg.Workspace, logging.Options{
		Debug:      cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.Format == "json",
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return nil, err
	}

	bus := hormones.NewBus()
	bus.SetRecorder(st)

	timeout, err := cfg.LLMTimeout()
	if err != nil {
		st.Close()
		return nil, err
	}
	cortex := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.Model, timeout)

	return &garden{
		cfg:    cfg,
		store:  st,
		bus:    bus,
		cortex: cortex,
		org:    organism.New(cfg, st, bus, cortex),
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	g, err := openGarden()
	if err != nil {
		return err
	}
	defer g.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := g.org.Awaken(ctx); err != nil {
		return err
	}

	// Hot-reload logging options when the config file changes.
	stopWatch, err := config.Watch(cfgPath, func(c *config.Config) {
		logging.Configure(logging.Options{
			Debug:      c.Logging.Debug,
			Level:      c.Logging.Level,
			JSONFormat: c.Logging.Format == "json",
			Categories: c.Logging.Categories,
		})
	})
	if err == nil {
		defer stopWatch()
	}

	srv := server.New(g.cfg, g.store, g.bus, g.org, g.cortex)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.org.Run(ctx)
	})
	eg.Go(func() error {
		return srv.Start(ctx)
	})
	return eg.Wait()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
