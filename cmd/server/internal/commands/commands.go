package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ecoagris/portal/internal/identity"
	"github.com/ecoagris/portal/internal/store"
	memorystore "github.com/ecoagris/portal/internal/store/memory"
	postgresstore "github.com/ecoagris/portal/internal/store/postgres"
	"github.com/rs/zerolog/log"
)

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// StoreFlags selects and configures the account and profile stores.
type StoreFlags struct {
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"ECOAGRIS_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"10"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`
	ConnectAttempts uint          `help:"attempts to reach the database on startup" default:"5"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"ECOAGRIS_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.MinConns > s.MaxConns {
		return fmt.Errorf("min conns (%d) must not exceed max conns (%d)", s.MinConns, s.MaxConns)
	}
	return nil
}

func (s *StoreFlags) Validate() error {
	if s.StoreType == "postgres" && s.PostgresStore.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

// requirePersistent rejects the memory store for commands whose writes must
// outlive the process.
func (s *StoreFlags) requirePersistent(command string) error {
	if s.StoreType == "memory" {
		return fmt.Errorf("%s needs a persistent store: pass --store-type postgres", command)
	}
	return s.Validate()
}

type stores struct {
	Users    store.UserStore
	Profiles store.ProfileStore
	close    func()
}

func (s *stores) Close() {
	if s.close != nil {
		s.close()
	}
}

func (s *StoreFlags) open(ctx context.Context) (*stores, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	switch s.StoreType {
	case "postgres":
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      s.PostgresStore.ConnString,
			MaxConns:        s.PostgresStore.MaxConns,
			MinConns:        s.PostgresStore.MinConns,
			MaxConnLifetime: s.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: s.PostgresStore.MaxConnIdleTime,
			ConnectAttempts: s.PostgresStore.ConnectAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		if s.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

		return &stores{
			Users:    postgresstore.NewUserStore(pool),
			Profiles: postgresstore.NewProfileStore(pool),
			close:    pool.Close,
		}, nil

	default:
		log.Info().Msg("Using in-memory identity stores")

		return &stores{
			Users:    memorystore.NewUserStore(),
			Profiles: memorystore.NewProfileStore(),
		}, nil
	}
}

// IdentityFlags configures the local identity provider.
type IdentityFlags struct {
	Issuer     string        `help:"issuer URL for ID tokens and session cookies" default:"https://localhost" env:"ECOAGRIS_IDENTITY_ISSUER"`
	Audience   string        `help:"audience (project id) tokens are issued for" default:"ecoagris-portal" env:"ECOAGRIS_IDENTITY_AUDIENCE"`
	SigningKey string        `help:"path to a PEM encoded P-256 signing key; generated when empty" type:"path" env:"ECOAGRIS_IDENTITY_SIGNING_KEY"`
	TokenTTL   time.Duration `help:"ID token lifetime" default:"1h" env:"ECOAGRIS_IDENTITY_TOKEN_TTL"`
}

func (f *IdentityFlags) authority(users store.UserStore) (*identity.Authority, error) {
	var (
		keys *identity.KeyManager
		err  error
	)
	if f.SigningKey != "" {
		keys, err = identity.LoadKeyManager(f.SigningKey)
	} else {
		log.Warn().Msg("No signing key configured, sessions will not survive a restart")
		keys, err = identity.NewKeyManager()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signing key: %w", err)
	}

	authority, err := identity.NewAuthority(keys, users, identity.AuthorityConfig{
		Issuer:     f.Issuer,
		Audience:   f.Audience,
		IDTokenTTL: f.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity provider: %w", err)
	}

	log.Info().
		Str("issuer", authority.Issuer()).
		Str("kid", keys.Kid()).
		Msg("Identity provider initialized")

	return authority, nil
}
