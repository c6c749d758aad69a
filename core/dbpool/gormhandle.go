package dbpool

import (
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormHandle is a Handle backed by a gorm.io/gorm connection, grounded on
// nabbar-golib's database/gorm wrapper: a lazily opened *gorm.DB guarded
// by a mutex, with an explicit stale flag a Pool can set to force a
// reconnect on next Checkout.
type GormHandle struct {
	dsn     string
	verbose bool

	mu    sync.Mutex
	db    *gorm.DB
	stale bool
}

// NewGormOpener returns an Opener producing GormHandle values against
// dsn, using GORM's sqlite driver. verbose enables GORM's default logger
// instead of silencing it, matching the §6 dbpool.verbose config key.
func NewGormOpener(dsn string, verbose bool) Opener {
	return func() Handle {
		return &GormHandle{dsn: dsn, verbose: verbose}
	}
}

// DB returns the underlying *gorm.DB for issuing queries. Callers must
// hold the Handle only between Checkout and Release.
func (h *GormHandle) DB() *gorm.DB {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db
}

func (h *GormHandle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db != nil
}

func (h *GormHandle) Connect() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db != nil {
		return nil
	}

	logLevel := gormlogger.Silent
	if h.verbose {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(sqlite.Open(h.dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return err
	}

	h.db = db
	h.stale = false
	return nil
}

func (h *GormHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db == nil {
		return nil
	}

	sqlDB, err := h.db.DB()
	h.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (h *GormHandle) MarkStale() {
	h.mu.Lock()
	h.stale = true
	h.mu.Unlock()
}

func (h *GormHandle) IsMarkedStale() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stale
}
