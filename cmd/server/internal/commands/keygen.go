package commands

import (
	"fmt"
	"os"

	"github.com/ecoagris/portal/internal/identity"
)

type KeygenCmd struct {
	Out string `help:"write the key to this file instead of stdout" short:"o" type:"path"`
}

func (c *KeygenCmd) Run() error {
	keys, err := identity.NewKeyManager()
	if err != nil {
		return err
	}

	data, err := keys.PrivateKeyPEM()
	if err != nil {
		return err
	}

	if c.Out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}

	if err := os.WriteFile(c.Out, data, 0o600); err != nil {
		return fmt.Errorf("failed to write signing key: %w", err)
	}

	fmt.Fprintf(os.Stderr, "wrote signing key %s (kid %s)\n", c.Out, keys.Kid())
	return nil
}
