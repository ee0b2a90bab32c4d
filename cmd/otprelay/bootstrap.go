package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/nhle/otp-relay/internal/account"
	"github.com/nhle/otp-relay/internal/credential"
	"github.com/nhle/otp-relay/internal/logging"
	"github.com/nhle/otp-relay/internal/model"
	"github.com/nhle/otp-relay/internal/retrieval"
	"github.com/nhle/otp-relay/internal/source/email"
	"github.com/nhle/otp-relay/internal/store"
)

const pkgName = "main"

// storeMode says whether a command needs the SQLite account store.
type storeMode int

const (
	storeIfPresent storeMode = iota // open only when the file exists
	storeCreate                     // create the file if missing
)

// runtimeEnv is everything a command needs after startup.
type runtimeEnv struct {
	cfg      *model.AppConfig
	store    store.AccountStore
	registry *account.Registry
}

func (e *runtimeEnv) Close() {
	if e.store == nil {
		return
	}
	if err := e.store.Close(); err != nil {
		log.Warn().Str("pkg", pkgName).Err(err).Msg("closing account store")
	}
}

// bootstrap loads .env and configuration, sets up logging, opens the
// account store and builds the registry with keyring passwords resolved.
func bootstrap(ctx context.Context, configPath string, mode storeMode) (*runtimeEnv, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}

	env := &runtimeEnv{cfg: cfg}

	accounts := cfg.Accounts
	env.store, err = openStore(storagePath(cfg), mode)
	if err != nil {
		return nil, err
	}
	if env.store != nil {
		stored, err := env.store.GetAccounts(ctx)
		if err != nil {
			env.Close()
			return nil, err
		}
		accounts = append(accounts, stored...)
	}

	accounts = credential.ResolvePasswords(accounts, credential.Get)
	env.registry = account.NewRegistry(accounts)

	log.Debug().
		Str("pkg", pkgName).
		Int("accounts", len(accounts)).
		Int("active", len(env.registry.ListActive())).
		Msg("accounts loaded")

	return env, nil
}

// newService wires the retrieval orchestrator over live IMAP sessions.
func newService(env *runtimeEnv) *retrieval.Service {
	searcher := retrieval.NewSearcher(
		email.NewIMAPDialer(),
		env.cfg.Retrieval.Mailbox,
		env.cfg.Retrieval.Lookback,
	)
	return retrieval.NewService(env.registry, searcher.Search, env.cfg.Retrieval.DefaultTimeout())
}

func storagePath(cfg *model.AppConfig) string {
	if cfg.Storage.Path != "" {
		return cfg.Storage.Path
	}
	return model.DefaultStoragePath()
}

func openStore(path string, mode storeMode) (store.AccountStore, error) {
	if mode == storeIfPresent {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	return s, nil
}
