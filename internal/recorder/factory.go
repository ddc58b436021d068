package recorder

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/olegsinavski/SMARTS/internal/config"
	"github.com/olegsinavski/SMARTS/internal/database"
)

// NewBackend creates a recorder backend based on configuration.
func NewBackend(cfg config.RecorderConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Backend {
	case "gorm", "database":
		db := database.NewManager(log)
		flush := time.Duration(cfg.FlushInterval) * time.Millisecond
		return NewGormBackend(log, db, flush), nil
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown recorder backend: %s", cfg.Backend)
	}
}
