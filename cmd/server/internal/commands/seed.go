package commands

import (
	"context"

	"github.com/ecoagris/portal/internal/logger"
	zlog "github.com/rs/zerolog/log"
)

type SeedCmd struct {
	File string `arg:"" help:"YAML seed file" type:"existingfile"`

	Store    StoreFlags    `embed:""`
	Identity IdentityFlags `embed:"" prefix:"identity-"`
}

func (c *SeedCmd) Validate() error {
	return c.Store.requirePersistent("seed")
}

func (c *SeedCmd) Run(ctx context.Context, globals *Globals) error {
	zlog.Logger = logger.Setup(globals.Debug)

	if err := c.Validate(); err != nil {
		return err
	}

	st, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	authority, err := c.Identity.authority(st.Users)
	if err != nil {
		return err
	}

	return applySeed(ctx, c.File, authority, st)
}
