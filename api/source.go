package api

import (
	"strings"

	"budgetbuddy/database"
	"budgetbuddy/middleware"
	"budgetbuddy/models"

	"github.com/gin-gonic/gin"
)

// SourceHandler 消费来源处理器（现金、信用卡等支付方式）
type SourceHandler struct{}

// NewSourceHandler 创建消费来源处理器
func NewSourceHandler() *SourceHandler {
	return &SourceHandler{}
}

// SourceRequest 创建/更新来源请求
type SourceRequest struct {
	Name string `json:"name" binding:"required,max=40" example:"信用卡"`
}

// List 获取来源列表
// @Summary 获取来源列表
// @Description 获取当前用户的全部消费来源
// @Tags 来源
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.Source} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/sources [get]
func (h *SourceHandler) List(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var sources []models.Source
	if err := database.DB.Where("user_id = ?", userID).Order("id ASC").Find(&sources).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}

	Success(c, sources)
}

// Create 创建来源
// @Summary 创建来源
// @Description 创建一个新的消费来源。同名来源（忽略大小写）已存在时返回已有来源。
// @Tags 来源
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SourceRequest true "来源信息"
// @Success 200 {object} Response{data=models.Source} "创建成功或已存在"
// @Failure 400 {object} Response "请求参数错误"
// @Router /api/v1/sources [post]
func (h *SourceHandler) Create(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req SourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		BadRequest(c, "来源名称不能为空")
		return
	}

	var existing models.Source
	if err := database.DB.Where("user_id = ? AND lower(name) = lower(?)", userID, name).
		First(&existing).Error; err == nil {
		SuccessWithMessage(c, "来源已存在", existing)
		return
	}

	source := models.Source{UserID: userID, Name: name}
	if err := database.DB.Create(&source).Error; err != nil {
		if lookupErr := database.DB.Where("user_id = ? AND lower(name) = lower(?)", userID, name).
			First(&existing).Error; lookupErr == nil {
			SuccessWithMessage(c, "来源已存在", existing)
			return
		}
		InternalError(c, SafeErrorMessage(err, "创建来源失败"))
		return
	}

	SuccessWithMessage(c, "创建成功", source)
}

// Update 更新来源
// @Summary 更新来源
// @Description 重命名当前用户的指定来源
// @Tags 来源
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "来源ID"
// @Param request body SourceRequest true "来源信息"
// @Success 200 {object} Response{data=models.Source} "更新成功"
// @Failure 400 {object} Response "请求参数错误或名称已存在"
// @Failure 404 {object} Response "来源不存在"
// @Router /api/v1/sources/{id} [put]
func (h *SourceHandler) Update(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var source models.Source
	if err := database.DB.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&source).Error; err != nil {
		NotFound(c, "来源不存在")
		return
	}

	var req SourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		BadRequest(c, "来源名称不能为空")
		return
	}

	var existing models.Source
	if err := database.DB.Where("user_id = ? AND lower(name) = lower(?) AND id <> ?", userID, name, source.ID).
		First(&existing).Error; err == nil {
		BadRequest(c, "同名来源已存在")
		return
	}

	if err := database.DB.Model(&source).Update("name", name).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "更新来源失败"))
		return
	}

	SuccessWithMessage(c, "更新成功", source)
}

// Delete 删除来源
// @Summary 删除来源
// @Description 删除当前用户的指定来源（软删除）
// @Tags 来源
// @Produce json
// @Security BearerAuth
// @Param id path int true "来源ID"
// @Success 200 {object} Response "删除成功"
// @Failure 404 {object} Response "来源不存在"
// @Router /api/v1/sources/{id} [delete]
func (h *SourceHandler) Delete(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var source models.Source
	if err := database.DB.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&source).Error; err != nil {
		NotFound(c, "来源不存在")
		return
	}

	if err := database.DB.Delete(&source).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "删除来源失败"))
		return
	}

	SuccessWithMessage(c, "删除成功", nil)
}
