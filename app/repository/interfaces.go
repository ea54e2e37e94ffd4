package repository

import (
	"github.com/ManuelReschke/ReportFox/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByExternalUID(uid string) (*models.User, error)
	FindOrCreateByIdentity(uid, email, name string) (*models.User, bool, error)
	TouchLastLogin(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
}

// ReportRepository defines the interface for report records
type ReportRepository interface {
	Create(report *models.Report) error
	GetByID(id uint) (*models.Report, error)
	ListByUserID(userID uint, offset, limit int) ([]models.Report, error)
	CountByUserID(userID uint) (int64, error)
}
