package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ReportStatusDraft     = "draft"
	ReportStatusGenerated = "generated"
)

// Report is the minimal record of a generated report. Rendering lives elsewhere.
type Report struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UserID     uint           `gorm:"index;not null" json:"user_id"`
	Title      string         `gorm:"type:varchar(200);not null" json:"title" validate:"required,min=1,max=200"`
	TemplateID string         `gorm:"type:varchar(100);default:''" json:"template_id" validate:"max=100"`
	Status     string         `gorm:"type:varchar(20);default:'draft'" json:"status"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (r *Report) Validate() error {
	v := validator.New()

	return v.Struct(r)
}
