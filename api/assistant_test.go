package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"budgetbuddy/config"
	"budgetbuddy/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assistantTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Mode: "debug"},
		AI: config.AIConfig{
			BaseURL:         "http://127.0.0.1:0",
			ChatModel:       "test/chat-model",
			ModerationModel: "test/moderation-model",
			TimeoutSeconds:  1,
		},
	}
}

func TestAssistantHandler_Chat_EmptyMessages(t *testing.T) {
	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.POST("/assistant/chat", NewAssistantHandler(assistantTestConfig()).Chat)

	body := `{"messages":[]}`
	req := httptest.NewRequest("POST", "/assistant/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 400, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["details"], "messages")
}

func TestAssistantHandler_Chat_InvalidBody(t *testing.T) {
	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.POST("/assistant/chat", NewAssistantHandler(assistantTestConfig()).Chat)

	req := httptest.NewRequest("POST", "/assistant/chat", bytes.NewBufferString(`not-json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 400, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["details"])
}

func TestAssistantHandler_Chat_SSERelay(t *testing.T) {
	// 未配置密钥：固定话术以 delta+done 帧流式返回，不触发上游调用
	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.POST("/assistant/chat", NewAssistantHandler(assistantTestConfig()).Chat)

	body := `{"messages":[{"role":"user","content":"how much did I spend?"}]}`
	req := httptest.NewRequest("POST", "/assistant/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var deltas strings.Builder
	var sawDone bool
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event service.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		switch event.Type {
		case "delta":
			deltas.WriteString(event.Content)
		case "done":
			sawDone = true
		}
	}
	assert.Equal(t, service.MsgNotConfigured, deltas.String())
	assert.True(t, sawDone)
}
