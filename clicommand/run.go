package clicommand

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/launcher"
	"github.com/dlerazeezcore/the-book-platform/signalwatcher"
)

const runDescription = `Usage:

   the-book run [options...]

Description:

   Boots the whole platform: the gateway backend in the background on
   127.0.0.1:5050 and the web frontend in the foreground on
   0.0.0.0:$PORT (default 8000). AVAILABILITY_BACKEND_URL defaults to
   http://127.0.0.1:5050 so the frontend finds the gateway it was
   started with.

   There is no readiness gate between the two starts and no
   restart-on-crash: the frontend probes for a live backend on its own.
   On SIGINT or SIGTERM the gateway is terminated on a best-effort
   basis, and the command exits with the frontend's exit status.

   By default both services are started by re-executing this binary
   with the gateway and web subcommands. A YAML manifest can override
   either command line:

      gateway:
        command: the-book gateway --bind 127.0.0.1:5050
      web:
        command: the-book web --port ${PORT:-8000}

Example:

   $ the-book run
   $ PORT=9000 the-book run --manifest deploy.yml`

type RunConfig struct {
	Manifest string `cli:"manifest" normalize:"filepath"`

	// Global flags
	Config   string `cli:"config"`
	Debug    bool   `cli:"debug"`
	LogLevel string `cli:"log-level"`
	NoColor  bool   `cli:"no-color"`
}

var RunCommand = cli.Command{
	Name:        "run",
	Usage:       "Starts the gateway and the web frontend together",
	Description: runDescription,
	Flags: append([]cli.Flag{
		cli.StringFlag{
			Name:   "manifest",
			Value:  "",
			Usage:  "Path to a YAML manifest overriding the service command lines",
			EnvVar: "THEBOOK_MANIFEST",
		},
	}, globalFlags...),
	Action: func(c *cli.Context) error {
		cfg := RunConfig{}
		if err := loadConfig(c, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
			os.Exit(1)
		}
		l := CreateLogger(&cfg)

		self, err := os.Executable()
		if err != nil {
			l.Fatal("Finding own executable: %v", err)
		}

		environ := env.FromSlice(os.Environ())
		conf := launcher.Config{
			GatewayCommand: []string{self, "gateway"},
			WebCommand:     []string{self, "web"},
			Env:            environ,
			Stdout:         os.Stdout,
			Stderr:         os.Stderr,
		}

		if cfg.Manifest != "" {
			manifest, err := launcher.LoadManifest(cfg.Manifest)
			if err != nil {
				l.Fatal("%v", err)
			}
			if err := manifest.Apply(&conf, environ); err != nil {
				l.Fatal("%v", err)
			}
		}

		boot, err := launcher.New(l, conf)
		if err != nil {
			l.Fatal("%v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		signalwatcher.Watch(ctx, func(sig signalwatcher.Signal) {
			l.Notice("Received signal %s, stopping services", sig)
			boot.Stop()
		})

		status, err := boot.Run(ctx)
		if err != nil {
			l.Error("%v", err)
		}
		os.Exit(status)
		return nil
	},
}
