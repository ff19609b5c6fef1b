package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patchpilot/patchpilot/internal/llm"
	"github.com/patchpilot/patchpilot/internal/tools"
)

func TestChatLiftsSystemAndParsesText(t *testing.T) {
	t.Parallel()

	p := NewProvider("anthropic", "http://mock", "key", 5*time.Second)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			require.Equal(t, "/v1/messages", r.URL.Path)
			require.Equal(t, "key", r.Header.Get("x-api-key"))
			require.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)

			var reqBody map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &reqBody))
			require.Equal(t, "you are a coding agent", reqBody["system"])
			msgs, ok := reqBody["messages"].([]interface{})
			require.True(t, ok)
			require.Len(t, msgs, 1)

			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     make(http.Header),
				Body: io.NopCloser(strings.NewReader(`{
					"id": "msg_1",
					"content": [{"type": "text", "text": "done"}],
					"stop_reason": "end_turn",
					"usage": {"input_tokens": 10, "output_tokens": 4}
				}`)),
			}, nil
		}),
	}

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Model: "claude-sonnet-4-20250514",
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: "you are a coding agent"},
			{Role: llm.RoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "done", resp.Message.Content)
	require.Equal(t, "end_turn", resp.FinishReason)
	require.Equal(t, 14, resp.Usage.TotalTokens)
}

func TestChatDecodesToolUseBlocks(t *testing.T) {
	t.Parallel()

	p := NewProvider("anthropic", "http://mock", "", 0)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)

			var reqBody map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &reqBody))
			reqTools, ok := reqBody["tools"].([]interface{})
			require.True(t, ok)
			require.Len(t, reqTools, len(tools.Catalog()))

			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     make(http.Header),
				Body: io.NopCloser(strings.NewReader(`{
					"id": "msg_2",
					"content": [
						{"type": "text", "text": "creating the handler now"},
						{"type": "tool_use", "id": "toolu_1", "name": "create_file",
						 "input": {"file_path": "api/health.go", "content": "package api", "description": "health endpoint"}}
					],
					"stop_reason": "tool_use",
					"usage": {"input_tokens": 20, "output_tokens": 15}
				}`)),
			}, nil
		}),
	}

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Model:    "claude-sonnet-4-20250514",
		Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: "add a health endpoint"}},
		Tools:    tools.Catalog(),
	})
	require.NoError(t, err)
	require.Equal(t, "creating the handler now", resp.Message.Content)
	require.Equal(t, "tool_use", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "create_file", resp.ToolCalls[0].Function.Name)
	require.Equal(t, "toolu_1", resp.ToolCalls[0].ID)

	args, err := resp.ToolCalls[0].Decode()
	require.NoError(t, err)
	require.Equal(t, "api/health.go", args["file_path"])
}

func TestToolResultTravelsAsUserBlock(t *testing.T) {
	t.Parallel()

	system, msgs := toAnthropicMessages([]llm.ChatMessage{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "go"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
			ID:       "toolu_9",
			Function: llm.ToolFunctionCall{Name: "read_file", Arguments: json.RawMessage(`{"file_path":"a"}`)},
		}}},
		{Role: llm.RoleTool, ToolCallID: "toolu_9", Content: "file body"},
	})
	require.Equal(t, "sys", system)
	require.Len(t, msgs, 3)
	require.Equal(t, "assistant", msgs[1].Role)
	require.Equal(t, "tool_use", msgs[1].Content[0].Type)
	require.Equal(t, "user", msgs[2].Role)
	require.Equal(t, "tool_result", msgs[2].Content[0].Type)
	require.Equal(t, "toolu_9", msgs[2].Content[0].ToolUseID)
}

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
