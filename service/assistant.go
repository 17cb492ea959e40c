package service

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"budgetbuddy/config"
)

// Event 助手每轮对话产出的增量事件，由传输层转发给调用方
type Event struct {
	Type    string `json:"type"`              // delta | tool | done | error
	Content string `json:"content,omitempty"` // delta文本或错误信息
	Name    string `json:"name,omitempty"`    // 工具名（type=tool）
	Status  string `json:"status,omitempty"`  // pending | executing | completed
	Details string `json:"details,omitempty"` // 错误详情
}

// 工具调用生命周期状态
const (
	ToolStatusPending   = "pending"
	ToolStatusExecuting = "executing"
	ToolStatusCompleted = "completed"
)

// maxToolRounds 单轮对话内工具调用的最大轮数，防止模型循环调用
const maxToolRounds = 5

// AssistantService AI助手编排：审核 → 携带工具的流式补全 → 工具执行循环
type AssistantService struct {
	cfg   *config.AIConfig
	tools *ToolRegistry
}

// NewAssistantService 创建助手服务
func NewAssistantService(cfg *config.AIConfig, tools *ToolRegistry) *AssistantService {
	return &AssistantService{cfg: cfg, tools: tools}
}

// moderationResult 审核结果
type moderationResult struct {
	IsRelevant bool   `json:"isRelevant"`
	Reason     string `json:"reason"`
}

// moderate 轻量审核调用：判断消息是否与财务相关。
// 解析失败视为不相关（宁可误拦，不给无关消息挂工具）。
func (s *AssistantService) moderate(ctx context.Context, client *OpenRouterClient, userMessage string) (moderationResult, error) {
	content, err := client.Complete(ctx, s.cfg.ModerationModel, []ChatMessage{
		{Role: "system", Content: moderationSystemPrompt},
		{Role: "user", Content: userMessage},
	})
	if err != nil {
		return moderationResult{}, err
	}

	// 兼容模型包裹代码块的情况
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var result moderationResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		log.Printf("审核结果解析失败: %v, 原始内容: %s", err, content)
		return moderationResult{IsRelevant: false, Reason: "Failed to process content moderation."}, nil
	}
	return result, nil
}

// lastUserMessage 取历史中最后一条用户消息作为审核对象
func lastUserMessage(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// sanitizeHistory 只保留 user/assistant 文本消息，丢弃调用方传入的系统消息和空消息
func sanitizeHistory(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// isAuthError 上游 401/403，配合用户自带密钥用于区分“密钥无效”
func isAuthError(err error) bool {
	if apiErr, ok := err.(*APIStatusError); ok {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

// Chat 处理一轮对话，返回事件通道。
// 通道在 done/error 事件后关闭；ctx 取消时生产者停止，
// 已派发的工具调用独立完成（创建类操作要么成功要么失败，与流无关）。
func (s *AssistantService) Chat(ctx context.Context, userID uint, history []ChatMessage, customKey string) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)

		emit := func(e Event) bool {
			select {
			case events <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}
		finish := func(text string) {
			if text != "" {
				if !emit(Event{Type: "delta", Content: text}) {
					return
				}
			}
			emit(Event{Type: "done"})
		}
		fail := func(msg string, err error) {
			details := ""
			if err != nil {
				details = err.Error()
			}
			emit(Event{Type: "error", Content: msg, Details: details})
		}

		client := NewOpenRouterClient(s.cfg, customKey)
		if !client.HasKey() {
			// 未配置密钥时不触发任何模型调用
			finish(MsgNotConfigured)
			return
		}

		// 1. 审核：无关消息直接重定向，绝不携带工具调用模型
		moderation, err := s.moderate(ctx, client, lastUserMessage(history))
		if err != nil {
			if customKey != "" && isAuthError(err) {
				finish(MsgInvalidKey)
				return
			}
			fail("Failed to process your message.", err)
			return
		}
		if !moderation.IsRelevant {
			finish(MsgOffTopic)
			return
		}

		// 2. 组装对话：系统提示词在前，随后是历史和新消息
		messages := make([]ChatMessage, 0, len(history)+1)
		messages = append(messages, ChatMessage{Role: "system", Content: AssistantSystemPrompt(time.Now())})
		messages = append(messages, sanitizeHistory(history)...)

		// 3. 流式补全 + 工具执行循环，直到模型给出无工具调用的最终回答
		for round := 0; round < maxToolRounds; round++ {
			result, err := client.StreamChat(ctx, s.cfg.ChatModel, messages, s.tools.Definitions(), func(delta string) {
				emit(Event{Type: "delta", Content: delta})
			})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if customKey != "" && isAuthError(err) {
					finish(MsgInvalidKey)
					return
				}
				fail("The assistant failed to generate a response.", err)
				return
			}

			if len(result.ToolCalls) == 0 {
				emit(Event{Type: "done"})
				return
			}

			messages = append(messages, ChatMessage{
				Role:      "assistant",
				Content:   result.Content,
				ToolCalls: result.ToolCalls,
			})

			for _, tc := range result.ToolCalls {
				if !emit(Event{Type: "tool", Name: tc.Function.Name, Status: ToolStatusPending}) {
					return
				}
				if !emit(Event{Type: "tool", Name: tc.Function.Name, Status: ToolStatusExecuting}) {
					return
				}

				// 工具执行不随流取消中断，创建操作独立完成
				toolResult := s.tools.Execute(context.WithoutCancel(ctx), userID, tc.Function.Name, json.RawMessage(tc.Function.Arguments))

				resultJSON, err := json.Marshal(toolResult)
				if err != nil {
					resultJSON = []byte(`{"success":false,"error":"failed to encode tool result"}`)
				}
				messages = append(messages, ChatMessage{
					Role:       "tool",
					Content:    string(resultJSON),
					ToolCallID: tc.ID,
				})

				if !emit(Event{Type: "tool", Name: tc.Function.Name, Status: ToolStatusCompleted}) {
					return
				}
			}
		}

		fail("The assistant made too many tool calls in a single turn.", nil)
	}()

	return events
}
