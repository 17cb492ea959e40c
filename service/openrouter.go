package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"budgetbuddy/config"
)

// ChatMessage 对话消息（OpenAI兼容格式）
type ChatMessage struct {
	Role       string     `json:"role"` // system | user | assistant | tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall 模型发起的工具调用
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall 工具调用的函数名和参数（参数为 JSON 字符串）
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition 随请求下发的工具声明
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition 工具的名称、描述和输入 JSON Schema
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// StreamResult 一次流式请求结束后的汇总
type StreamResult struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// APIStatusError 上游返回的非 200 状态
type APIStatusError struct {
	StatusCode int
	Body       string
}

func (e *APIStatusError) Error() string {
	return fmt.Sprintf("AI服务返回错误: %d %s", e.StatusCode, e.Body)
}

// OpenRouterClient OpenRouter（OpenAI兼容）客户端
type OpenRouterClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOpenRouterClient 创建客户端；overrideKey 非空时优先于配置中的密钥
func NewOpenRouterClient(cfg *config.AIConfig, overrideKey string) *OpenRouterClient {
	key := cfg.APIKey
	if overrideKey != "" {
		key = overrideKey
	}
	return &OpenRouterClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     key,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

// HasKey 是否配置了密钥
func (c *OpenRouterClient) HasKey() bool {
	return c.apiKey != ""
}

func (c *OpenRouterClient) newRequest(ctx context.Context, body map[string]interface{}) (*http.Request, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("构建请求失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// Complete 非流式补全，返回首个 choice 的文本内容（用于内容审核等轻量调用）
func (c *OpenRouterClient) Complete(ctx context.Context, model string, messages []ChatMessage) (string, error) {
	req, err := c.newRequest(ctx, map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"temperature": 0.0,
	})
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求AI服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &APIStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("解析响应失败: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("AI服务返回空响应")
	}
	return out.Choices[0].Message.Content, nil
}

// streamChunk 流式帧（data: {...}）
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// toolCallAssembler 按 index 拼接分片下发的工具调用参数
type toolCallAssembler struct {
	order []int
	calls map[int]*ToolCall
}

func newToolCallAssembler() *toolCallAssembler {
	return &toolCallAssembler{calls: make(map[int]*ToolCall)}
}

func (a *toolCallAssembler) add(index int, id, typ, name, argsFragment string) {
	tc, ok := a.calls[index]
	if !ok {
		tc = &ToolCall{}
		a.calls[index] = tc
		a.order = append(a.order, index)
	}
	if id != "" {
		tc.ID = id
	}
	if typ != "" {
		tc.Type = typ
	}
	if name != "" {
		tc.Function.Name = name
	}
	tc.Function.Arguments += argsFragment
}

func (a *toolCallAssembler) result() []ToolCall {
	out := make([]ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		out = append(out, *a.calls[idx])
	}
	return out
}

// StreamChat 流式对话请求。文本增量通过 onDelta 实时回调，
// 工具调用分片在流结束后汇总返回。
func (c *OpenRouterClient) StreamChat(
	ctx context.Context,
	model string,
	messages []ChatMessage,
	tools []ToolDefinition,
	onDelta func(string),
) (*StreamResult, error) {
	body := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   true,
	}
	if len(tools) > 0 {
		body["tools"] = tools
	}

	req, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求AI服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &APIStatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return parseChatStream(ctx, resp.Body, onDelta)
}

// parseChatStream 解析 OpenAI SSE 流（data: {...} / data: [DONE]）
func parseChatStream(ctx context.Context, r io.Reader, onDelta func(string)) (*StreamResult, error) {
	reader := bufio.NewReader(r)
	result := &StreamResult{}
	assembler := newToolCallAssembler()
	var content strings.Builder

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// 有些兼容接口不会发送 [DONE]，EOF 视为结束
				break
			}
			return nil, fmt.Errorf("读取流失败: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		data := bytes.TrimPrefix(line, []byte("data: "))
		if string(data) == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			assembler.add(tc.Index, tc.ID, tc.Type, tc.Function.Name, tc.Function.Arguments)
		}
		if choice.FinishReason != "" {
			result.FinishReason = choice.FinishReason
		}
	}

	result.Content = content.String()
	result.ToolCalls = assembler.result()
	return result, nil
}
