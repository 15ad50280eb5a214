package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/ecoagris/portal/internal/identity"
	"github.com/ecoagris/portal/internal/logger"
	"github.com/ecoagris/portal/internal/store"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

type UserCmd struct {
	Create  UserCreateCmd  `cmd:"" help:"Create an account"`
	Disable UserDisableCmd `cmd:"" help:"Disable an account and revoke its sessions"`
	Enable  UserEnableCmd  `cmd:"" help:"Re-enable a disabled account"`
	Revoke  UserRevokeCmd  `cmd:"" help:"Revoke every session of an account"`

	Store    StoreFlags    `embed:""`
	Identity IdentityFlags `embed:"" prefix:"identity-"`
}

// AfterApply makes the shared user flags available to the subcommands.
func (c *UserCmd) AfterApply(kctx *kong.Context) error {
	kctx.Bind(c)
	return nil
}

func (c *UserCmd) Validate() error {
	return c.Store.requirePersistent("user")
}

// userCtx is what each user subcommand operates on.
type userCtx struct {
	authority *identity.Authority
	users     store.UserStore
}

func (c *UserCmd) open(ctx context.Context, globals *Globals) (*userCtx, func(), error) {
	zlog.Logger = logger.Setup(globals.Debug)

	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	st, err := c.Store.open(ctx)
	if err != nil {
		return nil, nil, err
	}

	authority, err := c.Identity.authority(st.Users)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	return &userCtx{authority: authority, users: st.Users}, st.Close, nil
}

// resolve accepts either a UID or an email address.
func (u *userCtx) resolve(ctx context.Context, ref string) (uuid.UUID, error) {
	if uid, err := uuid.Parse(ref); err == nil {
		return uid, nil
	}

	user, err := u.users.GetByEmail(ctx, ref)
	if errors.Is(err, store.ErrUserNotFound) {
		return uuid.Nil, fmt.Errorf("no account for %s", ref)
	}
	if err != nil {
		return uuid.Nil, err
	}
	return user.UID, nil
}

type UserCreateCmd struct {
	Email       string `arg:"" help:"account email"`
	Password    string `help:"account password (min 8 characters)" env:"ECOAGRIS_USER_PASSWORD" required:""`
	DisplayName string `help:"display name"`
}

func (c *UserCreateCmd) Run(ctx context.Context, globals *Globals, parent *UserCmd) error {
	u, closeFn, err := parent.open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	user, err := u.authority.CreateUser(ctx, c.Email, c.Password, c.DisplayName)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, user.UID)
	return nil
}

type UserDisableCmd struct {
	User string `arg:"" help:"account UID or email"`
}

func (c *UserDisableCmd) Run(ctx context.Context, globals *Globals, parent *UserCmd) error {
	return parent.apply(ctx, globals, c.User, func(u *userCtx, uid uuid.UUID) error {
		return u.authority.SetDisabled(ctx, uid, true)
	})
}

type UserEnableCmd struct {
	User string `arg:"" help:"account UID or email"`
}

func (c *UserEnableCmd) Run(ctx context.Context, globals *Globals, parent *UserCmd) error {
	return parent.apply(ctx, globals, c.User, func(u *userCtx, uid uuid.UUID) error {
		return u.authority.SetDisabled(ctx, uid, false)
	})
}

type UserRevokeCmd struct {
	User string `arg:"" help:"account UID or email"`
}

func (c *UserRevokeCmd) Run(ctx context.Context, globals *Globals, parent *UserCmd) error {
	return parent.apply(ctx, globals, c.User, func(u *userCtx, uid uuid.UUID) error {
		return u.authority.RevokeRefreshTokens(ctx, uid)
	})
}

func (c *UserCmd) apply(ctx context.Context, globals *Globals, ref string, fn func(*userCtx, uuid.UUID) error) error {
	u, closeFn, err := c.open(ctx, globals)
	if err != nil {
		return err
	}
	defer closeFn()

	uid, err := u.resolve(ctx, ref)
	if err != nil {
		return err
	}

	return fn(u, uid)
}
