package database

import (
	"fmt"
	"log"

	"budgetbuddy/config"
	"budgetbuddy/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init 初始化数据库连接
func Init(cfg *config.Config) error {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		cfg.Database.Host,
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.Port,
		cfg.Database.SSLMode,
		cfg.Database.TimeZone,
	)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	// 获取底层 *sql.DB 连接池配置
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	// 设置连接池参数
	sqlDB.SetMaxIdleConns(10)  // 最大空闲连接数
	sqlDB.SetMaxOpenConns(100) // 最大打开连接数

	// 自动迁移数据库表
	if err := DB.AutoMigrate(
		&models.User{},
		&models.Expense{},
		&models.Category{},
		&models.Source{},
		&models.PasswordReset{},
		&models.Feedback{},
	); err != nil {
		return err
	}

	// 同一用户下类别/来源名称忽略大小写唯一。
	// 用数据库表达式索引收口，避免“先查再插”在并发下产生重复名称。
	if err := DB.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_user_lower_name
		 ON categories (user_id, lower(name)) WHERE deleted_at IS NULL`,
	).Error; err != nil {
		return fmt.Errorf("创建类别唯一索引失败: %w", err)
	}
	if err := DB.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sources_user_lower_name
		 ON sources (user_id, lower(name)) WHERE deleted_at IS NULL`,
	).Error; err != nil {
		return fmt.Errorf("创建来源唯一索引失败: %w", err)
	}

	log.Println("数据库初始化成功")
	return nil
}

// GetDB 获取数据库连接
func GetDB() *gorm.DB {
	return DB
}
