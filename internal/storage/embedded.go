package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
)

const (
	embeddedUser     = "ledgermeta"
	embeddedPassword = "ledgermeta"
	embeddedDatabase = "ledgermeta"
)

// Embedded is a PostgreSQL server running from the data directory
type Embedded struct {
	db   *embeddedpostgres.EmbeddedPostgres
	port uint32
}

// StartEmbedded launches PostgreSQL with its cluster under dir
func StartEmbedded(dir string, port uint32) (*Embedded, error) {
	cfg := embeddedpostgres.DefaultConfig().
		Username(embeddedUser).
		Password(embeddedPassword).
		Database(embeddedDatabase).
		Port(port).
		RuntimePath(filepath.Join(dir, "runtime")).
		DataPath(filepath.Join(dir, "data"))

	db := embeddedpostgres.NewDatabase(cfg)
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("failed to start embedded postgres in %s: %w", dir, err)
	}

	slog.Info("Embedded postgres started", "dir", dir, "port", port)
	return &Embedded{db: db, port: port}, nil
}

// URL is the connection string for the embedded server
func (e *Embedded) URL() string {
	return fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		embeddedUser, embeddedPassword, e.port, embeddedDatabase)
}

// Stop shuts the server down
func (e *Embedded) Stop() error {
	if err := e.db.Stop(); err != nil {
		return fmt.Errorf("failed to stop embedded postgres: %w", err)
	}
	return nil
}
