package clicommand

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/dlerazeezcore/the-book-platform/gateway"
	"github.com/dlerazeezcore/the-book-platform/signalwatcher"
)

const gatewayStartDescription = `Usage:

   the-book gateway [options...]

Description:

   Starts the gateway API service: flight availability and booking through
   the Wings OTA upstream, provider permissions, email notifications and
   FIB payments.

   The service binds to the loopback interface; it is meant to sit behind
   the web frontend, not face the public internet.

Example:

   $ the-book gateway --bind 127.0.0.1:5050 --data-dir /var/lib/the-book`

type GatewayStartConfig struct {
	Bind       string `cli:"bind"`
	DataDir    string `cli:"data-dir" normalize:"filepath"`
	StatsdHost string `cli:"statsd-host"`

	// Global flags
	Config   string `cli:"config"`
	Debug    bool   `cli:"debug"`
	LogLevel string `cli:"log-level"`
	NoColor  bool   `cli:"no-color"`
}

var GatewayStartCommand = cli.Command{
	Name:        "gateway",
	Usage:       "Starts the gateway backend service",
	Description: gatewayStartDescription,
	Flags: append([]cli.Flag{
		cli.StringFlag{
			Name:   "bind",
			Value:  gateway.DefaultAddr,
			Usage:  "The TCP address to bind",
			EnvVar: "GATEWAY_BIND",
		},
		DataDirFlag,
		StatsdHostFlag,
	}, globalFlags...),
	Action: func(c *cli.Context) error {
		cfg := GatewayStartConfig{}
		if err := loadConfig(c, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
			os.Exit(1)
		}
		l := CreateLogger(&cfg)

		server, err := gateway.NewServer(l, gateway.Config{
			Addr:       cfg.Bind,
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
