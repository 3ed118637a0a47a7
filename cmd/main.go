package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/victornm/songparty/internal/config"
	"github.com/victornm/songparty/internal/server"
)

type flags struct {
	configPath string
	envFile    string
	verbose    bool
}

func main() {
	f := &flags{}
	cobra.CheckErr(newCmd(f).Execute())
}

func newCmd(f *flags) *cobra.Command {
	root := &cobra.Command{
		Use:           "songparty",
		Short:         "Party game server: players answer prompts with songs and guess who picked what.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP, websocket and gRPC APIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	fs := serve.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&f.configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to the config file (env: CONFIG_PATH)")
	fs.StringVar(&f.envFile, "env-file", ".env", "optional dotenv file loaded before the config")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(serve)
	return root
}

func run(f *flags) error {
	if f.verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	c, err := loadConfig(f)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
	return nil
}

func loadConfig(f *flags) (server.Config, error) {
	c := server.DefaultConfig()

	if err := config.LoadDotEnv(f.envFile); err != nil {
		return c, fmt.Errorf("dotenv: %w", err)
	}

	if f.configPath == "" {
		f.configPath = os.Getenv("CONFIG_PATH")
	}
	if f.configPath == "" {
		return c, fmt.Errorf("no config file, set --config or CONFIG_PATH")
	}

	if err := config.Load(f.configPath, &c); err != nil {
		return c, err
	}

	if c.Identity.Secret == "" {
		return c, fmt.Errorf("identity.secret is required")
	}

	return c, nil
}
