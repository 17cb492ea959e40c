package models

import (
	"time"

	"gorm.io/gorm"
)

// Source 支付来源（如 Cash、Credit Card），形状与类别一致但独立命名空间
type Source struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"index;not null"`
	Name      string         `json:"name" gorm:"size:40;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Source) TableName() string {
	return "sources"
}
