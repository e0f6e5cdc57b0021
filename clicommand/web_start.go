package clicommand

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/dlerazeezcore/the-book-platform/signalwatcher"
	"github.com/dlerazeezcore/the-book-platform/web"
)

const webStartDescription = `Usage:

   the-book web [options...]

Description:

   Starts the web frontend service. It resolves a live gateway backend
   (AVAILABILITY_BACKEND_URL, then AVAILABILITY_BACKEND_URLS, then the
   localhost defaults), proxies availability and booking requests to it,
   and serves the search enrichment and seat estimation APIs.

Example:

   $ the-book web --port 8000 --data-dir /var/lib/the-book`

type WebStartConfig struct {
	Port       string `cli:"port"`
	DataDir    string `cli:"data-dir" normalize:"filepath"`
	StatsdHost string `cli:"statsd-host"`

	// Global flags
	Config   string `cli:"config"`
	Debug    bool   `cli:"debug"`
	LogLevel string `cli:"log-level"`
	NoColor  bool   `cli:"no-color"`
}

var WebStartCommand = cli.Command{
	Name:        "web",
	Usage:       "Starts the web frontend service",
	Description: webStartDescription,
	Flags: append([]cli.Flag{
		cli.StringFlag{
			Name:   "port",
			Value:  web.DefaultPort,
			Usage:  "The public port to listen on",
			EnvVar: "PORT",
		},
		DataDirFlag,
		StatsdHostFlag,
	}, globalFlags...),
	Action: func(c *cli.Context) error {
		cfg := WebStartConfig{}
		if err := loadConfig(c, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
			os.Exit(1)
		}
		l := CreateLogger(&cfg)

		server, err := web.NewServer(l, web.Config{
			Addr:       "0.0.0.0:" + cfg.Port,
			DataDir:    cfg.DataDir,
			StatsdHost: cfg.StatsdHost,
		})
		if err != nil {
			l.Fatal("%v", err)
		}

		if err := server.Start(); err != nil {
			l.Fatal("%v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		signalwatcher.Watch(ctx, func(sig signalwatcher.Signal) {
			l.Notice("Received signal %s, shutting down", sig)
			cancel()
		})
		<-ctx.Done()

		if err := server.Stop(); err != nil {
			l.Error("Shutdown: %v", err)
		}
		return nil
	},
}
