package commands

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"
)

func TestServeCmd_Validate(t *testing.T) {
	valid := func() ServeCmd {
		return ServeCmd{SessionTTL: 168 * time.Hour, LoginRate: 10, LoginBurst: 5}
	}

	tests := []struct {
		name    string
		mutate  func(c *ServeCmd)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *ServeCmd) {}},
		{name: "cert without key", mutate: func(c *ServeCmd) { c.Cert = "cert.pem" }, wantErr: "must be given together"},
		{name: "short session", mutate: func(c *ServeCmd) { c.SessionTTL = time.Minute }, wantErr: "session TTL"},
		{name: "long session", mutate: func(c *ServeCmd) { c.SessionTTL = 15 * 24 * time.Hour }, wantErr: "session TTL"},
		{name: "zero burst", mutate: func(c *ServeCmd) { c.LoginBurst = 0 }, wantErr: "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestStoreFlags(t *testing.T) {
	t.Run("postgres requires a connection string", func(t *testing.T) {
		flags := StoreFlags{StoreType: "postgres"}
		_, err := flags.open(context.Background())
		require.ErrorContains(t, err, "connection string is required")
	})

	t.Run("memory", func(t *testing.T) {
		flags := StoreFlags{StoreType: "memory"}
		st, err := flags.open(context.Background())
		require.NoError(t, err)
		defer st.Close()

		require.NotNil(t, st.Users)
		require.NotNil(t, st.Profiles)
	})
}

func TestPersistentStoreCommands_Validate(t *testing.T) {
	tests := []struct {
		name    string
		store   StoreFlags
		wantErr string
	}{
		{name: "memory", store: StoreFlags{StoreType: "memory"}, wantErr: "--store-type postgres"},
		{name: "postgres without conn string", store: StoreFlags{StoreType: "postgres"}, wantErr: "connection string is required"},
		{name: "postgres", store: StoreFlags{StoreType: "postgres", PostgresStore: PostgresStoreFlags{ConnString: "postgres://localhost/ecoagris"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for command, validate := range map[string]func() error{
				"user": (&UserCmd{Store: tt.store}).Validate,
				"seed": (&SeedCmd{Store: tt.store}).Validate,
			} {
				err := validate()
				if tt.wantErr == "" {
					require.NoError(t, err, command)
					continue
				}
				require.ErrorContains(t, err, tt.wantErr, command)
				require.ErrorContains(t, err, command, command)
			}
		})
	}
}

func TestUserCmdRejectsDefaultStoreOnParse(t *testing.T) {
	var cli struct {
		User UserCmd `cmd:""`
	}
	parser, err := kong.New(&cli, kong.Exit(func(int) {}))
	require.NoError(t, err)

	_, err = parser.Parse([]string{"user", "revoke", "ops@ecoagris.org"})
	require.ErrorContains(t, err, "--store-type postgres")
}

func TestKeygenThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, (&KeygenCmd{Out: path}).Run())

	flags := StoreFlags{StoreType: "memory"}
	st, err := flags.open(context.Background())
	require.NoError(t, err)

	identity := IdentityFlags{Issuer: "https://portal.ecoagris.test", Audience: "ecoagris-portal", SigningKey: path, TokenTTL: time.Hour}

	first, err := identity.authority(st.Users)
	require.NoError(t, err)
	second, err := identity.authority(st.Users)
	require.NoError(t, err)

	require.Equal(t, first.Keys().Kid(), second.Keys().Kid())
}
