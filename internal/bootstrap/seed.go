package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ecoagris/portal/internal/models"
	"github.com/ecoagris/portal/internal/store"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// File is the YAML seed document.
type File struct {
	Users []User `yaml:"users"`
}

// User is one account to seed. Exactly one of Password and PasswordHash is set.
type User struct {
	Email        string   `yaml:"email"`
	Password     string   `yaml:"password,omitempty"`
	PasswordHash string   `yaml:"passwordHash,omitempty"`
	DisplayName  string   `yaml:"displayName,omitempty"`
	Profile      *Profile `yaml:"profile,omitempty"`
}

// Profile holds the display fields written to the profile store.
type Profile struct {
	Country  string `yaml:"country,omitempty"`
	Title    string `yaml:"title,omitempty"`
	PhotoURL string `yaml:"photoUrl,omitempty"`
}

// Accounts creates identity accounts.
type Accounts interface {
	CreateUser(ctx context.Context, email, password, displayName string) (*models.User, error)
	CreateUserWithHash(ctx context.Context, email, passwordHash, displayName string) (*models.User, error)
}

// Config holds the stores the seed is written to.
type Config struct {
	Accounts Accounts
	Users    store.UserStore
	Profiles store.ProfileStore
}

// Result reports what a seed run did.
type Result struct {
	Created  []string
	Skipped  []string
	Profiles int
}

// Load reads and validates a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a seed document. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("unmarshal seed file: %w", err)
	}

	if err := file.Validate(); err != nil {
		return nil, err
	}

	return &file, nil
}

// Validate checks every entry has an email and exactly one password form.
func (f *File) Validate() error {
	seen := make(map[string]bool, len(f.Users))

	for i, u := range f.Users {
		if u.Email == "" {
			return fmt.Errorf("users[%d]: email is required", i)
		}
		if seen[u.Email] {
			return fmt.Errorf("users[%d]: duplicate email %s", i, u.Email)
		}
		seen[u.Email] = true

		if (u.Password == "") == (u.PasswordHash == "") {
			return fmt.Errorf("users[%d]: exactly one of password or passwordHash is required", i)
		}
	}

	return nil
}

// Seed creates the accounts in file that do not exist yet and upserts their
// profiles. Existing accounts are left untouched and reported as skipped.
func Seed(ctx context.Context, cfg Config, file *File) (*Result, error) {
	if cfg.Accounts == nil || cfg.Users == nil || cfg.Profiles == nil {
		return nil, errors.New("accounts, users and profiles are required")
	}
	if file == nil {
		return nil, errors.New("seed file is required")
	}

	result := &Result{}

	for _, entry := range file.Users {
		user, created, err := ensureUser(ctx, cfg, entry)
		if err != nil {
			return result, fmt.Errorf("failed to seed %s: %w", entry.Email, err)
		}

		if created {
			result.Created = append(result.Created, entry.Email)
		} else {
			result.Skipped = append(result.Skipped, entry.Email)
			log.Info().Str("email", entry.Email).Msg("Account exists, skipping")
		}

		if !created && entry.Profile == nil {
			continue
		}

		if err := cfg.Profiles.Put(ctx, profileFor(user, entry)); err != nil {
			return result, fmt.Errorf("failed to write profile for %s: %w", entry.Email, err)
		}
		result.Profiles++
	}

	return result, nil
}

func ensureUser(ctx context.Context, cfg Config, entry User) (*models.User, bool, error) {
	existing, err := cfg.Users.GetByEmail(ctx, entry.Email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, false, err
	}

	var user *models.User
	if entry.PasswordHash != "" {
		user, err = cfg.Accounts.CreateUserWithHash(ctx, entry.Email, entry.PasswordHash, entry.DisplayName)
	} else {
		user, err = cfg.Accounts.CreateUser(ctx, entry.Email, entry.Password, entry.DisplayName)
	}
	if err != nil {
		return nil, false, err
	}

	return user, true, nil
}

func profileFor(user *models.User, entry User) *models.Profile {
	profile := &models.Profile{
		UID:         user.UID,
		DisplayName: entry.DisplayName,
		UpdatedAt:   time.Now().UTC(),
	}
	if profile.DisplayName == "" {
		profile.DisplayName = user.DisplayName
	}
	if entry.Profile != nil {
		profile.Country = entry.Profile.Country
		profile.Title = entry.Profile.Title
		profile.PhotoURL = entry.Profile.PhotoURL
	}
	return profile
}
