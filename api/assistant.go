package api

import (
	"encoding/json"
	"net/http"

	"budgetbuddy/config"
	"budgetbuddy/middleware"
	"budgetbuddy/service"

	"github.com/gin-gonic/gin"
)

// AssistantHandler AI助手处理器
type AssistantHandler struct {
	assistant *service.AssistantService
}

// NewAssistantHandler 创建AI助手处理器
func NewAssistantHandler(cfg *config.Config) *AssistantHandler {
	return &AssistantHandler{
		assistant: service.NewAssistantService(&cfg.AI, service.DefaultToolRegistry()),
	}
}

// AssistantChatMessage 对话消息
type AssistantChatMessage struct {
	Role    string `json:"role" binding:"required" example:"user"`
	Content string `json:"content" example:"这个月我花了多少钱？"`
}

// AssistantChatRequest 助手对话请求
type AssistantChatRequest struct {
	Messages []AssistantChatMessage `json:"messages"`
	APIKey   string                 `json:"api_key"` // 用户自带的 OpenRouter 密钥，可选
}

// writeSSEJSON 以 SSE 帧写出一个 JSON 对象
func writeSSEJSON(c *gin.Context, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = c.Writer.WriteString("data: " + string(b) + "\n\n")
	c.Writer.Flush()
}

// Chat AI助手对话（SSE流式返回）
// @Summary AI助手对话
// @Description 与AI助手对话。SSE流式返回JSON帧：delta文本增量、tool工具执行状态、终止帧 done/error。
// @Tags AI助手
// @Accept json
// @Produce text/event-stream
// @Security BearerAuth
// @Param request body AssistantChatRequest true "对话历史，可附带自己的 OpenRouter 密钥"
// @Success 200 {string} string "SSE流：data: {\"type\":\"delta\",\"content\":\"...\"}"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/assistant/chat [post]
func (h *AssistantHandler) Chat(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req AssistantChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误",
			"details": err.Error(),
		})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    400,
			"message": "参数错误",
			"details": "messages 不能为空",
		})
		return
	}

	history := make([]service.ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		history = append(history, service.ChatMessage{Role: m.Role, Content: m.Content})
	}

	// SSE响应头
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// 客户端断开时请求上下文取消，生产者随之停止
	events := h.assistant.Chat(c.Request.Context(), userID, history, req.APIKey)
	for event := range events {
		writeSSEJSON(c, event)
	}
}
