package models

import (
	"time"

	"gorm.io/gorm"
)

// Feedback AI助手回答的用户反馈（独立于消费域的旁路记录）
// Rating 为 0 表示尚未评分
type Feedback struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"index;not null"`
	Question  string         `json:"question" gorm:"type:text;not null"`
	Answer    string         `json:"answer" gorm:"type:text;not null"`
	Rating    int            `json:"rating" gorm:"default:0"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Feedback) TableName() string {
	return "feedbacks"
}
