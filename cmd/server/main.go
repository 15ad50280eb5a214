package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/ecoagris/portal/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"ECOAGRIS_DEBUG"`
		Version kong.VersionFlag

		Serve  commands.ServeCmd  `cmd:"" default:"withargs" help:"Start the portal (pages + admin API)"`
		User   commands.UserCmd   `cmd:"" help:"Manage identity accounts"`
		Seed   commands.SeedCmd   `cmd:"" help:"Create accounts and profiles from a YAML seed file"`
		Keygen commands.KeygenCmd `cmd:"" help:"Generate a PEM encoded session signing key"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("ecoagris-portal"),
		kong.Description("ECOAGRIS data portal with gated admin area."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
