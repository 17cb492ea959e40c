package models

import (
	"time"

	"gorm.io/gorm"
)

// Category 消费类别（按用户隔离）
// 同一用户下名称忽略大小写唯一，由数据库表达式索引保证（见 database.Init）
type Category struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"index;not null"`
	Name      string         `json:"name" gorm:"size:40;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Category) TableName() string {
	return "categories"
}
