package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory hands out the gorm-backed repositories sharing one handle.
type Factory struct {
	users   UserRepository
	reports ReportRepository
}

func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		users:   NewUserRepository(db),
		reports: NewReportRepository(db),
	}
}

func (f *Factory) GetUserRepository() UserRepository {
	return f.users
}

func (f *Factory) GetReportRepository() ReportRepository {
	return f.reports
}

var (
	globalMu      sync.RWMutex
	globalFactory *Factory
)

// InitializeFactory installs the process-wide factory. A second call
// replaces the first, which tests use to swap databases.
func InitializeFactory(db *gorm.DB) *Factory {
	f := NewFactory(db)
	globalMu.Lock()
	globalFactory = f
	globalMu.Unlock()
	return f
}

// GetGlobalFactory panics when InitializeFactory was never called.
func GetGlobalFactory() *Factory {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalFactory == nil {
		panic("repository factory not initialized, call InitializeFactory first")
	}
	return globalFactory
}
