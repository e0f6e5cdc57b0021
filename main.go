package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/dlerazeezcore/the-book-platform/clicommand"
	"github.com/dlerazeezcore/the-book-platform/version"
)

const appHelpTemplate = `Usage:

  {{.Name}} <command> [options...]

Available commands are:

  {{range .Commands}}{{.Name}}{{with .ShortName}}, {{.}}{{end}}{{ "\t" }}{{.Usage}}
  {{end}}
Use "{{.Name}} <command> --help" for more information about a command.

`

const commandHelpTemplate = `{{.Description}}

Options:

   {{range .Flags}}{{.}}
   {{end}}
`

func main() {
	cli.AppHelpTemplate = appHelpTemplate
	cli.CommandHelpTemplate = commandHelpTemplate

	app := cli.NewApp()
	app.Name = "the-book"
	app.Version = version.Version()
	app.Commands = []cli.Command{
		clicommand.RunCommand,
		clicommand.GatewayStartCommand,
		clicommand.WebStartCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
