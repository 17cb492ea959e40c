package api

import (
	"strings"

	"budgetbuddy/database"
	"budgetbuddy/middleware"
	"budgetbuddy/models"

	"github.com/gin-gonic/gin"
)

// CategoryHandler 消费类别处理器
type CategoryHandler struct{}

// NewCategoryHandler 创建消费类别处理器
func NewCategoryHandler() *CategoryHandler {
	return &CategoryHandler{}
}

// CategoryRequest 创建/更新类别请求
type CategoryRequest struct {
	Name string `json:"name" binding:"required,max=40" example:"餐饮"`
}

// List 获取类别列表
// @Summary 获取类别列表
// @Description 获取当前用户的全部消费类别
// @Tags 类别
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.Category} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var categories []models.Category
	if err := database.DB.Where("user_id = ?", userID).Order("id ASC").Find(&categories).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}

	Success(c, categories)
}

// Create 创建类别
// @Summary 创建类别
// @Description 创建一个新的消费类别。同名类别（忽略大小写）已存在时返回已有类别。
// @Tags 类别
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CategoryRequest true "类别信息"
// @Success 200 {object} Response{data=models.Category} "创建成功或已存在"
// @Failure 400 {object} Response "请求参数错误"
// @Router /api/v1/categories [post]
func (h *CategoryHandler) Create(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		BadRequest(c, "类别名称不能为空")
		return
	}

	// 忽略大小写幂等创建
	var existing models.Category
	if err := database.DB.Where("user_id = ? AND lower(name) = lower(?)", userID, name).
		First(&existing).Error; err == nil {
		SuccessWithMessage(c, "类别已存在", existing)
		return
	}

	category := models.Category{UserID: userID, Name: name}
	if err := database.DB.Create(&category).Error; err != nil {
		// 并发创建撞唯一索引时回查幸存行
		if lookupErr := database.DB.Where("user_id = ? AND lower(name) = lower(?)", userID, name).
			First(&existing).Error; lookupErr == nil {
			SuccessWithMessage(c, "类别已存在", existing)
			return
		}
		InternalError(c, SafeErrorMessage(err, "创建类别失败"))
		return
	}

	SuccessWithMessage(c, "创建成功", category)
}

// Update 更新类别
// @Summary 更新类别
// @Description 重命名当前用户的指定类别
// @Tags 类别
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Param request body CategoryRequest true "类别信息"
// @Success 200 {object} Response{data=models.Category} "更新成功"
// @Failure 400 {object} Response "请求参数错误或名称已存在"
// @Failure 404 {object} Response "类别不存在"
// @Router /api/v1/categories/{id} [put]
func (h *CategoryHandler) Update(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var category models.Category
	if err := database.DB.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&category).Error; err != nil {
		NotFound(c, "类别不存在")
		return
	}

	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		BadRequest(c, "类别名称不能为空")
		return
	}

	// 改名不能与其他类别冲突（忽略大小写）
	var existing models.Category
	if err := database.DB.Where("user_id = ? AND lower(name) = lower(?) AND id <> ?", userID, name, category.ID).
		First(&existing).Error; err == nil {
		BadRequest(c, "同名类别已存在")
		return
	}

	if err := database.DB.Model(&category).Update("name", name).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "更新类别失败"))
		return
	}

	SuccessWithMessage(c, "更新成功", category)
}

// Delete 删除类别
// @Summary 删除类别
// @Description 删除当前用户的指定类别（软删除）。已有记录保持原引用，展示为未分类。
// @Tags 类别
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Success 200 {object} Response "删除成功"
// @Failure 404 {object} Response "类别不存在"
// @Router /api/v1/categories/{id} [delete]
func (h *CategoryHandler) Delete(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var category models.Category
	if err := database.DB.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&category).Error; err != nil {
		NotFound(c, "类别不存在")
		return
	}

	if err := database.DB.Delete(&category).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "删除类别失败"))
		return
	}

	SuccessWithMessage(c, "删除成功", nil)
}
