package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"secretary-ai/internal/adapter/store"
	"secretary-ai/internal/domain"
	"secretary-ai/internal/infra/config"
	"secretary-ai/internal/security"
)

// Stores bundles the persistence ports. Driver names the backend actually in use.
type Stores struct {
	Driver        string
	Conversations domain.ConversationStore
	Credentials   domain.CredentialStore
	Todos         domain.TodoStore
}

// initStores opens the configured store. When SQLite cannot be opened the
// service keeps running on the in-memory store.
func initStores(cfg config.StoreConfig, log *slog.Logger) (*Stores, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	stores := &Stores{Driver: "memory"}
	switch cfg.Driver {
	case "sqlite":
		s, db, err := openSQLite(cfg.Path)
		if err != nil {
			log.Warn("sqlite store unavailable, falling back to memory", "path", cfg.Path, "error", err)
			break
		}
		cleanups = append(cleanups, func() { db.Close() })
		stores.Driver = "sqlite"
		stores.Conversations, stores.Credentials, stores.Todos = s, s, s
		log.Info("sqlite store opened", "path", cfg.Path)
	case "memory":
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	if stores.Driver == "memory" {
		m := store.NewMemoryStore()
		stores.Conversations, stores.Credentials, stores.Todos = m, m, m
	}

	if cfg.EncryptionKey != "" {
		c, err := security.NewTokenCipher(cfg.EncryptionKey)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("credential encryption: %w", err)
		}
		cleanups = append(cleanups, c.Zeroize)
		stores.Credentials = security.NewEncryptedCredentialStore(stores.Credentials, c)
		log.Info("calendar token encryption enabled", "algorithm", "AES-256-GCM")
	}

	return stores, cleanup, nil
}

func openSQLite(path string) (*store.SQLiteStore, *sql.DB, error) {
	db, err := store.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	s, err := store.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, db, nil
}
