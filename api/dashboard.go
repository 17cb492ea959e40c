package api

import (
	"time"

	"budgetbuddy/database"
	"budgetbuddy/middleware"
	"budgetbuddy/models"

	"github.com/gin-gonic/gin"
)

// DashboardHandler 仪表盘处理器
type DashboardHandler struct{}

// NewDashboardHandler 创建仪表盘处理器
func NewDashboardHandler() *DashboardHandler {
	return &DashboardHandler{}
}

// dashboardWindowDays 仪表盘统计窗口：最近30天（含今天）
const dashboardWindowDays = 30

// DailyTotal 单日消费总额
type DailyTotal struct {
	Date  string  `json:"date"`
	Total float64 `json:"total"`
}

// CategoryCount 类别下的记录数
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// DashboardResponse 仪表盘数据
type DashboardResponse struct {
	DailyTotals    []DailyTotal     `json:"daily_totals"`    // 固定30项，无记录的日期补零
	CategoryCounts []CategoryCount  `json:"category_counts"` // 窗口内按类别的记录数
	RecentExpenses []models.Expense `json:"recent_expenses"` // 最近5条
}

// Get 获取仪表盘数据
// @Summary 获取仪表盘数据
// @Description 获取最近30天的每日消费总额（补零）、类别分布和最近5条记录
// @Tags 仪表盘
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=DashboardResponse} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/dashboard [get]
func (h *DashboardHandler) Get(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	windowStart := today.AddDate(0, 0, -(dashboardWindowDays - 1))
	windowEnd := today.AddDate(0, 0, 1)

	// 每日总额
	var dailyRows []struct {
		Date  time.Time
		Total float64
	}
	if err := database.DB.Model(&models.Expense{}).
		Select("date, SUM(amount) as total").
		Where("user_id = ? AND date >= ? AND date < ?", userID, windowStart, windowEnd).
		Group("date").
		Scan(&dailyRows).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}

	totalsByDate := make(map[string]float64, len(dailyRows))
	for _, row := range dailyRows {
		totalsByDate[row.Date.Format(models.DateLayout)] = row.Total
	}

	// 固定30项，缺数据的日期补零
	dailyTotals := make([]DailyTotal, 0, dashboardWindowDays)
	for i := 0; i < dashboardWindowDays; i++ {
		day := windowStart.AddDate(0, 0, i).Format(models.DateLayout)
		dailyTotals = append(dailyTotals, DailyTotal{
			Date:  day,
			Total: totalsByDate[day],
		})
	}

	// 类别分布（左连接带出名称，无类别的记录归入 Uncategorized）
	var categoryCounts []CategoryCount
	if err := database.DB.Model(&models.Expense{}).
		Select("COALESCE(categories.name, 'Uncategorized') as category, COUNT(*) as count").
		Joins("LEFT JOIN categories ON categories.id = expenses.category_id AND categories.deleted_at IS NULL").
		Where("expenses.user_id = ? AND expenses.date >= ? AND expenses.date < ?", userID, windowStart, windowEnd).
		Group("COALESCE(categories.name, 'Uncategorized')").
		Order("count DESC").
		Scan(&categoryCounts).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}

	// 最近5条记录
	var recent []models.Expense
	if err := database.DB.Preload("Category").Preload("Source").
		Where("user_id = ?", userID).
		Order("date DESC, id DESC").
		Limit(5).
		Find(&recent).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}

	Success(c, DashboardResponse{
		DailyTotals:    dailyTotals,
		CategoryCounts: categoryCounts,
		RecentExpenses: recent,
	})
}
