package api

import (
	"budgetbuddy/database"
	"budgetbuddy/middleware"
	"budgetbuddy/models"

	"github.com/gin-gonic/gin"
)

// FeedbackHandler AI助手回答反馈处理器
type FeedbackHandler struct{}

// NewFeedbackHandler 创建反馈处理器
func NewFeedbackHandler() *FeedbackHandler {
	return &FeedbackHandler{}
}

// CreateFeedbackRequest 创建反馈请求
type CreateFeedbackRequest struct {
	Question string `json:"question" binding:"required" example:"这个月我花了多少钱？"`
	Answer   string `json:"answer" binding:"required" example:"You spent $420 this month."`
}

// RateFeedbackRequest 评分请求
type RateFeedbackRequest struct {
	Rating int `json:"rating" binding:"required,min=1,max=5" example:"5"`
}

// Create 记录一次助手问答
// @Summary 记录助手问答
// @Description 保存一次AI助手的问答内容，用于后续评分
// @Tags AI助手
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateFeedbackRequest true "问答内容"
// @Success 200 {object} Response{data=models.Feedback} "记录成功"
// @Failure 400 {object} Response "请求参数错误"
// @Router /api/v1/assistant/feedback [post]
func (h *FeedbackHandler) Create(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req CreateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	feedback := models.Feedback{
		UserID:   userID,
		Question: req.Question,
		Answer:   req.Answer,
	}

	if err := database.DB.Create(&feedback).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "保存反馈失败"))
		return
	}

	SuccessWithMessage(c, "记录成功", feedback)
}

// Rate 为问答打分
// @Summary 为助手回答评分
// @Description 为已记录的助手回答打分（1-5）
// @Tags AI助手
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "反馈ID"
// @Param request body RateFeedbackRequest true "评分"
// @Success 200 {object} Response{data=models.Feedback} "评分成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 404 {object} Response "反馈不存在"
// @Router /api/v1/assistant/feedback/{id} [put]
func (h *FeedbackHandler) Rate(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var feedback models.Feedback
	if err := database.DB.Where("id = ? AND user_id = ?", c.Param("id"), userID).First(&feedback).Error; err != nil {
		NotFound(c, "反馈不存在")
		return
	}

	var req RateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	if err := database.DB.Model(&feedback).Update("rating", req.Rating).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "评分失败"))
		return
	}

	SuccessWithMessage(c, "评分成功", feedback)
}
