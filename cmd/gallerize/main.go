package main

import (
	"github.com/alecthomas/kong"

	"github.com/josch/gallerize/cmd/gallerize/commands"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli := &commands.CLI{}
	ctx := kong.Parse(cli,
		kong.Name("gallerize"),
		kong.Description("Build a static gallery site from runnable Go examples."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	err := ctx.Run(&commands.Global{}, cli)
	ctx.FatalIfErrorf(err)
}
