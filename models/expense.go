package models

import (
	"time"

	"gorm.io/gorm"
)

// Expense 消费记录模型
// Date 仅保留日历日（零点），不含时间部分
type Expense struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	UserID      uint           `json:"user_id" gorm:"index;not null"`
	Title       string         `json:"title" gorm:"size:50;not null"`
	Description string         `json:"description" gorm:"size:200"`
	Amount      float64        `json:"amount" gorm:"type:decimal(10,2);not null"`
	Date        time.Time      `json:"date" gorm:"type:date;not null;index"`
	CategoryID  *uint          `json:"category_id" gorm:"index"` // 可为空，删除类别后旧记录保持原引用
	SourceID    *uint          `json:"source_id" gorm:"index"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
	User        User           `json:"-" gorm:"foreignKey:UserID"`
	Category    *Category      `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	Source      *Source        `json:"source,omitempty" gorm:"foreignKey:SourceID"`
}

// TableName 设置表名
func (Expense) TableName() string {
	return "expenses"
}

// DateLayout 消费日期的输入/输出格式
const DateLayout = "2006-01-02"
