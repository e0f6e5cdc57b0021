// Package clicommand has one file per CLI command, each with a Config
// struct loaded through cliconfig and a shared logger/global-flag setup.
package clicommand

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/oleiade/reflections"
	"github.com/urfave/cli"

	"github.com/dlerazeezcore/the-book-platform/cliconfig"
	"github.com/dlerazeezcore/the-book-platform/logger"
)

var ConfigFlag = cli.StringFlag{
	Name:   "config",
	Value:  "",
	Usage:  "Path to a configuration file",
	EnvVar: "THEBOOK_CONFIG",
}

var DebugFlag = cli.BoolFlag{
	Name:   "debug",
	Usage:  "Enable debug mode",
	EnvVar: "THEBOOK_DEBUG",
}

var LogLevelFlag = cli.StringFlag{
	Name:   "log-level",
	Value:  "notice",
	Usage:  "Set the log level, either debug, info, notice, warn or error",
	EnvVar: "THEBOOK_LOG_LEVEL",
}

var NoColorFlag = cli.BoolFlag{
	Name:   "no-color",
	Usage:  "Don't show colors in logging",
	EnvVar: "THEBOOK_NO_COLOR",
}

var DataDirFlag = cli.StringFlag{
	Name:   "data-dir",
	Value:  "data",
	Usage:  "Directory for the JSON data stores",
	EnvVar: "THEBOOK_DATA_DIR",
}

var StatsdHostFlag = cli.StringFlag{
	Name:   "statsd-host",
	Value:  "",
	Usage:  "A statsd host to send metrics to, e.g. 127.0.0.1:8125",
	EnvVar: "THEBOOK_STATSD_HOST",
}

var globalFlags = []cli.Flag{
	ConfigFlag,
	DebugFlag,
	LogLevelFlag,
	NoColorFlag,
}

// DefaultConfigFilePaths is where config files are looked for when --config
// isn't given: next to the binary, then the conventional system locations.
func DefaultConfigFilePaths() (paths []string) {
	paths = []string{
		"$HOME/.the-book/the-book.cfg",
		"/usr/local/etc/the-book/the-book.cfg",
		"/etc/the-book/the-book.cfg",
	}

	if pathToBinary, err := filepath.Abs(filepath.Dir(os.Args[0])); err == nil {
		paths = append([]string{filepath.Join(pathToBinary, "the-book.cfg")}, paths...)
	}

	return paths
}

// loadConfig fills cfg from the CLI context, env vars and config files. A
// .env file in the working directory is applied first so it can feed the
// flags' EnvVars, matching how the services were deployed historically.
func loadConfig(c *cli.Context, cfg any) error {
	_ = godotenv.Load()

	loader := cliconfig.Loader{
		CLI:                    c,
		Config:                 cfg,
		DefaultConfigFilePaths: DefaultConfigFilePaths(),
	}

	warnings, err := loader.Load()
	if err != nil {
		return err
	}
	for _, warning := range warnings {
		fmt.Fprintln(os.Stderr, warning)
	}
	return nil
}

// CreateLogger builds the logger for a command from its config struct,
// honoring the Debug, LogLevel and NoColor fields when present.
func CreateLogger(cfg any) logger.Logger {
	l := logger.NewTextLogger()

	if levelName, err := reflections.GetField(cfg, "LogLevel"); err == nil {
		if s, ok := levelName.(string); ok && s != "" {
			level, err := logger.LevelFromString(s)
			if err != nil {
				l.Fatal("%v", err)
			}
			l.SetLevel(level)
		}
	}

	if debug, err := reflections.GetField(cfg, "Debug"); debug == true && err == nil {
		l.SetLevel(logger.DEBUG)
	}

	if noColor, err := reflections.GetField(cfg, "NoColor"); noColor == true && err == nil {
		if tl, ok := l.(*logger.TextLogger); ok {
			tl.Colors = false
		}
	}

	return l
}
