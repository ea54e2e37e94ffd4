package repository

import (
	"github.com/ManuelReschke/ReportFox/app/models"
	"gorm.io/gorm"
)

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository creates a new report repository instance
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(report *models.Report) error {
	return r.db.Create(report).Error
}

func (r *reportRepository) GetByID(id uint) (*models.Report, error) {
	var report models.Report
	if err := r.db.First(&report, id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// ListByUserID returns the user's reports, newest first
func (r *reportRepository) ListByUserID(userID uint, offset, limit int) ([]models.Report, error) {
	var reports []models.Report
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&reports).Error
	return reports, err
}

func (r *reportRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Report{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
