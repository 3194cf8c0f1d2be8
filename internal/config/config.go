package config

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joelkehle/bizfinder/internal/lookup"
	"github.com/joelkehle/bizfinder/internal/session"
	"github.com/joelkehle/bizfinder/internal/store"
)

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"

	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"

	DefaultStateFile = "bizfinder-state.json"
	DefaultDBPath    = "bizfinder.db"
)

// Config is the runtime configuration shared by the server and the CLI.
// Binaries load it from the environment and let flags override fields.
type Config struct {
	Provider            string
	Store               string
	StateFile           string
	DBPath              string
	HistoryLimit        int
	MaxAttempts         int
	DescriptionLanguage string
	WebDir              string
}

func FromEnv() Config {
	return Config{
		Provider:            envString("BIZFINDER_PROVIDER", ProviderGemini),
		Store:               envString("BIZFINDER_STORE", StoreFile),
		StateFile:           envString("BIZFINDER_STATE_FILE", DefaultStateFile),
		DBPath:              envString("DB_PATH", DefaultDBPath),
		HistoryLimit:        envInt("BIZFINDER_HISTORY_LIMIT", 0),
		MaxAttempts:         envInt("BIZFINDER_LLM_MAX_ATTEMPTS", lookup.DefaultMaxAttempts),
		DescriptionLanguage: envString("BIZFINDER_DESCRIPTION_LANGUAGE", lookup.DefaultDescriptionLanguage),
		WebDir:              strings.TrimSpace(os.Getenv("BIZFINDER_WEB_DIR")),
	}
}

// OpenStore opens the configured store. The returned closer is never nil.
func (c Config) OpenStore() (store.Store, io.Closer, error) {
	switch strings.ToLower(c.Store) {
	case StoreMemory:
		return store.NewMemoryStore(), nopCloser{}, nil
	case StoreFile, "":
		s, err := store.NewFileStore(c.StateFile)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil
	case StoreSQLite:
		s, err := store.NewSQLiteStore(c.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want memory, file or sqlite)", c.Store)
	}
}

// NewGenerator builds the configured provider wrapped with retries.
func (c Config) NewGenerator(ctx context.Context) (lookup.Generator, error) {
	var (
		gen lookup.Generator
		err error
	)
	switch strings.ToLower(c.Provider) {
	case ProviderGemini, "":
		gen, err = lookup.NewGeminiGeneratorFromEnv(ctx)
	case ProviderAnthropic:
		gen, err = lookup.NewAnthropicGeneratorFromEnv()
	default:
		return nil, fmt.Errorf("unknown provider %q (want gemini or anthropic)", c.Provider)
	}
	if err != nil {
		return nil, err
	}
	return lookup.NewRetryingGenerator(gen, c.MaxAttempts), nil
}

// NewController wires the lookup service and store into a session controller.
func (c Config) NewController(svc *lookup.Service, st store.Store) (*session.Controller, error) {
	ctrl, err := session.NewController(svc, st, session.Config{HistoryLimit: c.HistoryLimit})
	if err != nil {
		return nil, err
	}
	log.Printf("bizfinder configured provider=%s model=%s store=%s history_limit=%d", c.Provider, svc.ModelName(), c.Store, c.HistoryLimit)
	return ctrl, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func envString(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	if n <= 0 {
		return fallback
	}
	return n
}
