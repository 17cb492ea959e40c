package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"budgetbuddy/database"
	"budgetbuddy/middleware"
	"budgetbuddy/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ExpenseHandler 消费记录处理器
type ExpenseHandler struct{}

// NewExpenseHandler 创建消费记录处理器
func NewExpenseHandler() *ExpenseHandler {
	return &ExpenseHandler{}
}

// CreateExpenseRequest 创建消费记录请求
type CreateExpenseRequest struct {
	Title       string  `json:"title" binding:"required,max=50" example:"午餐"`
	Description string  `json:"description" binding:"max=200" example:"公司楼下"`
	Amount      float64 `json:"amount" binding:"required,gt=0" example:"25.50"`
	Date        string  `json:"date" binding:"required" example:"2024-01-15"`
	CategoryID  *uint   `json:"category_id" example:"1"`
	SourceID    *uint   `json:"source_id" example:"1"`
}

// OptionalID 可选外键字段：键未出现表示不更新，显式 null 表示置空
type OptionalID struct {
	Set   bool
	Value *uint
}

// UnmarshalJSON 键出现即记为 Set，null 解析为 nil
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// UpdateExpenseRequest 更新消费记录请求
// 指针字段未提供则不更新；category_id/source_id 传 null 可解除关联
type UpdateExpenseRequest struct {
	Title       *string    `json:"title" binding:"omitempty,max=50"`
	Description *string    `json:"description" binding:"omitempty,max=200"`
	Amount      *float64   `json:"amount" binding:"omitempty,gt=0"`
	Date        *string    `json:"date"`
	CategoryID  OptionalID `json:"category_id" swaggertype:"integer"`
	SourceID    OptionalID `json:"source_id" swaggertype:"integer"`
}

// ExpenseFilter 消费记录筛选条件
type ExpenseFilter struct {
	Search     string `form:"search"`
	DateFrom   string `form:"date_from"`
	DateTo     string `form:"date_to"`
	AmountMin  string `form:"amount_min"`
	AmountMax  string `form:"amount_max"`
	CategoryID string `form:"category_id"`
	SourceID   string `form:"source_id"`
	SortBy     string `form:"sort_by"`
	Order      string `form:"order"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// escapeLikeValue 转义 LIKE 模式中的通配符
func escapeLikeValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// 排序字段白名单，防止注入
var expenseSortFields = map[string]string{
	"date":   "date",
	"amount": "amount",
	"title":  "title",
}

// BuildExpenseQuery 按筛选条件构建查询（不含分页与排序之外的副作用）
func BuildExpenseQuery(db *gorm.DB, userID uint, filter *ExpenseFilter) (*gorm.DB, error) {
	query := db.Model(&models.Expense{}).Where("user_id = ?", userID)

	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + escapeLikeValue(s) + "%"
		query = query.Where("title ILIKE ? OR description ILIKE ?", pattern, pattern)
	}
	if filter.DateFrom != "" {
		from, err := time.ParseInLocation(models.DateLayout, filter.DateFrom, time.Local)
		if err != nil {
			return nil, err
		}
		query = query.Where("date >= ?", from)
	}
	if filter.DateTo != "" {
		to, err := time.ParseInLocation(models.DateLayout, filter.DateTo, time.Local)
		if err != nil {
			return nil, err
		}
		// 含结束日当天
		query = query.Where("date < ?", to.AddDate(0, 0, 1))
	}
	if filter.AmountMin != "" {
		min, err := strconv.ParseFloat(filter.AmountMin, 64)
		if err != nil {
			return nil, err
		}
		query = query.Where("amount >= ?", min)
	}
	if filter.AmountMax != "" {
		max, err := strconv.ParseFloat(filter.AmountMax, 64)
		if err != nil {
			return nil, err
		}
		query = query.Where("amount <= ?", max)
	}
	if filter.CategoryID != "" {
		id, err := strconv.ParseUint(filter.CategoryID, 10, 64)
		if err != nil {
			return nil, err
		}
		query = query.Where("category_id = ?", id)
	}
	if filter.SourceID != "" {
		id, err := strconv.ParseUint(filter.SourceID, 10, 64)
		if err != nil {
			return nil, err
		}
		query = query.Where("source_id = ?", id)
	}

	return query, nil
}

// expenseOrderClause 排序子句（字段白名单 + 方向，默认按日期倒序）
func expenseOrderClause(filter *ExpenseFilter) string {
	field, ok := expenseSortFields[filter.SortBy]
	if !ok {
		field = "date"
	}
	direction := "DESC"
	if strings.EqualFold(filter.Order, "asc") {
		direction = "ASC"
	}
	return field + " " + direction
}

// parseExpenseDate 解析 YYYY-MM-DD 格式日期
func parseExpenseDate(s string) (time.Time, error) {
	return time.ParseInLocation(models.DateLayout, s, time.Local)
}

// resolveCategoryID 校验类别归属当前用户
func resolveCategoryID(userID uint, categoryID *uint) (*uint, bool) {
	if categoryID == nil {
		return nil, true
	}
	var cat models.Category
	if err := database.DB.Where("id = ? AND user_id = ?", *categoryID, userID).First(&cat).Error; err != nil {
		return nil, false
	}
	return &cat.ID, true
}

// resolveSourceID 校验来源归属当前用户
func resolveSourceID(userID uint, sourceID *uint) (*uint, bool) {
	if sourceID == nil {
		return nil, true
	}
	var src models.Source
	if err := database.DB.Where("id = ? AND user_id = ?", *sourceID, userID).First(&src).Error; err != nil {
		return nil, false
	}
	return &src.ID, true
}

// Create 创建消费记录
// @Summary 创建消费记录
// @Description 创建一条新的消费记录
// @Tags 消费记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateExpenseRequest true "消费记录信息"
// @Success 200 {object} Response{data=models.Expense} "创建成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/expenses [post]
func (h *ExpenseHandler) Create(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		BadRequest(c, "标题不能为空")
		return
	}

	date, err := parseExpenseDate(req.Date)
	if err != nil {
		BadRequest(c, "日期格式错误，应为: 2006-01-02")
		return
	}

	categoryID, ok := resolveCategoryID(userID, req.CategoryID)
	if !ok {
		BadRequest(c, "无效的消费类别")
		return
	}
	sourceID, ok := resolveSourceID(userID, req.SourceID)
	if !ok {
		BadRequest(c, "无效的消费来源")
		return
	}

	expense := models.Expense{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		Date:        date,
		CategoryID:  categoryID,
		SourceID:    sourceID,
	}

	if err := database.DB.Create(&expense).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "创建消费记录失败"))
		return
	}

	database.DB.Preload("Category").Preload("Source").First(&expense, expense.ID)
	SuccessWithMessage(c, "创建成功", expense)
}

// List 获取消费记录列表
// @Summary 获取消费记录列表
// @Description 获取当前用户的消费记录列表，支持筛选、排序和分页
// @Tags 消费记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param search query string false "标题/描述模糊搜索（忽略大小写）"
// @Param date_from query string false "开始日期 (2024-01-01)"
// @Param date_to query string false "结束日期，含当天 (2024-12-31)"
// @Param amount_min query number false "最小金额"
// @Param amount_max query number false "最大金额"
// @Param category_id query int false "类别筛选"
// @Param source_id query int false "来源筛选"
// @Param sort_by query string false "排序字段 (date/amount/title)" default(date)
// @Param order query string false "排序方向 (asc/desc)" default(desc)
// @Success 200 {object} Response{data=PageResponse{list=[]models.Expense}} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/expenses [get]
func (h *ExpenseHandler) List(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var filter ExpenseFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 10
	}

	baseQuery, err := BuildExpenseQuery(database.DB, userID, &filter)
	if err != nil {
		BadRequest(c, "筛选条件格式错误")
		return
	}

	// 数据页和总数并行查询
	var (
		expenses []models.Expense
		total    int64
		listErr  error
		countErr error
		wg       sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		listErr = baseQuery.Session(&gorm.Session{}).
			Preload("Category").Preload("Source").
			Order(expenseOrderClause(&filter)).
			Offset((filter.Page - 1) * filter.PageSize).
			Limit(filter.PageSize).
			Find(&expenses).Error
	}()
	go func() {
		defer wg.Done()
		countErr = baseQuery.Session(&gorm.Session{}).Count(&total).Error
	}()
	wg.Wait()

	if listErr != nil {
		InternalError(c, SafeErrorMessage(listErr, "查询失败"))
		return
	}
	if countErr != nil {
		InternalError(c, SafeErrorMessage(countErr, "查询失败"))
		return
	}

	Success(c, PageResponse{
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		List:     expenses,
	})
}

// Get 获取单条消费记录
// @Summary 获取消费记录详情
// @Description 获取当前用户的指定消费记录
// @Tags 消费记录
// @Produce json
// @Security BearerAuth
// @Param id path int true "记录ID"
// @Success 200 {object} Response{data=models.Expense} "获取成功"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/expenses/{id} [get]
func (h *ExpenseHandler) Get(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var expense models.Expense
	if err := database.DB.Preload("Category").Preload("Source").
		Where("id = ? AND user_id = ?", c.Param("id"), userID).
		First(&expense).Error; err != nil {
		NotFound(c, "记录不存在")
		return
	}

	Success(c, expense)
}

// Update 更新消费记录
// @Summary 更新消费记录
// @Description 更新当前用户的指定消费记录（仅更新请求中提供的字段，category_id/source_id 传 null 可解除关联）
// @Tags 消费记录
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "记录ID"
// @Param request body UpdateExpenseRequest true "更新信息"
// @Success 200 {object} Response{data=models.Expense} "更新成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/expenses/{id} [put]
func (h *ExpenseHandler) Update(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var expense models.Expense
	if err := database.DB.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&expense).Error; err != nil {
		NotFound(c, "记录不存在")
		return
	}

	var req UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			BadRequest(c, "标题不能为空")
			return
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Amount != nil {
		updates["amount"] = *req.Amount
	}
	if req.Date != nil {
		date, err := parseExpenseDate(*req.Date)
		if err != nil {
			BadRequest(c, "日期格式错误，应为: 2006-01-02")
			return
		}
		updates["date"] = date
	}
	if req.CategoryID.Set {
		categoryID, ok := resolveCategoryID(userID, req.CategoryID.Value)
		if !ok {
			BadRequest(c, "无效的消费类别")
			return
		}
		updates["category_id"] = categoryID
	}
	if req.SourceID.Set {
		sourceID, ok := resolveSourceID(userID, req.SourceID.Value)
		if !ok {
			BadRequest(c, "无效的消费来源")
			return
		}
		updates["source_id"] = sourceID
	}

	if len(updates) == 0 {
		BadRequest(c, "没有需要更新的字段")
		return
	}

	if err := database.DB.Model(&expense).Updates(updates).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "更新消费记录失败"))
		return
	}

	database.DB.Preload("Category").Preload("Source").First(&expense, expense.ID)
	SuccessWithMessage(c, "更新成功", expense)
}

// Delete 删除消费记录
// @Summary 删除消费记录
// @Description 删除当前用户的指定消费记录（软删除）
// @Tags 消费记录
// @Produce json
// @Security BearerAuth
// @Param id path int true "记录ID"
// @Success 200 {object} Response "删除成功"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/expenses/{id} [delete]
func (h *ExpenseHandler) Delete(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var expense models.Expense
	if err := database.DB.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&expense).Error; err != nil {
		NotFound(c, "记录不存在")
		return
	}

	if err := database.DB.Delete(&expense).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "删除消费记录失败"))
		return
	}

	SuccessWithMessage(c, "删除成功", nil)
}
