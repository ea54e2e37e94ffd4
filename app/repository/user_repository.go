package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/ReportFox/app/models"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByExternalUID retrieves a user by the identity provider uid
func (r *userRepository) GetByExternalUID(uid string) (*models.User, error) {
	var user models.User
	err := r.db.Where("external_uid = ?", strings.TrimSpace(uid)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindOrCreateByIdentity returns the user for a verified identity, creating it
// on first sight. Concurrent first requests for the same uid end up on one row.
// The email is refreshed when the provider reports a new one.
func (r *userRepository) FindOrCreateByIdentity(uid, email, name string) (*models.User, bool, error) {
	user, err := r.GetByExternalUID(uid)
	if err == nil {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" && email != user.Email {
			if err := r.db.Model(user).Update("email", email).Error; err != nil {
				return nil, false, err
			}
			user.Email = email
		}
		return user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	newUser, err := models.NewUserFromIdentity(uid, email, name)
	if err != nil {
		return nil, false, err
	}
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_uid"}},
		DoNothing: true,
	}).Create(newUser)
	if res.Error != nil {
		return nil, false, res.Error
	}

	if res.RowsAffected == 0 {
		user, err := r.GetByExternalUID(uid)
		return user, false, err
	}
	return newUser, true, nil
}

// TouchLastLogin stamps the last time the user was seen
func (r *userRepository) TouchLastLogin(id uint) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).UpdateColumn("last_login_at", time.Now().UTC()).Error
}

// List retrieves a paginated list of users
func (r *userRepository) List(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

// Search searches for users by name or email
func (r *userRepository) Search(query string) ([]models.User, error) {
	var users []models.User
	searchPattern := "%" + strings.TrimSpace(query) + "%"
	err := r.db.Where("name LIKE ? OR email LIKE ?", searchPattern, searchPattern).Find(&users).Error
	return users, err
}
