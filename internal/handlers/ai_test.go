package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taamsimcha-backend/internal/llm"
	"taamsimcha-backend/internal/models"
	"taamsimcha-backend/internal/services"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int32
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.reply, f.err
}

func newAIHandler(c llm.Completer) *AIHandler {
	return NewAIHandler(
		services.NewNegotiator(c, 0, zap.NewNop()),
		services.NewRecipeGenerator(c, 0, zap.NewNop()),
	)
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-1")
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.APIError {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp.Error
}

func TestChatRecipe_Recipe(t *testing.T) {
	c := &fakeCompleter{reply: "פסטה ברוטב עגבניות\n\nמנה קלילה לערב.\n[[TYPE:RECIPE]]"}
	h := newAIHandler(c)

	rr := postJSON(t, h.ChatRecipe, "/api/v1/ai/chat-recipe", models.ChatRecipeRequest{
		Messages: []models.ChatMessage{{Role: "user", Content: "מאשר"}},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "recipe", got["type"])
	assert.Equal(t, true, got["done"])
	assert.Equal(t, "פסטה ברוטב עגבניות", got["title"])
	assert.NotContains(t, got["reply"], "[[")
}

func TestChatRecipe_QuestionOmitsTitle(t *testing.T) {
	h := newAIHandler(&fakeCompleter{reply: "לאיזו ארוחה? [[TYPE:QUESTION]]"})

	rr := postJSON(t, h.ChatRecipe, "/api/v1/ai/chat-recipe", models.ChatRecipeRequest{
		Messages: []models.ChatMessage{{Role: "user", Content: "שלום"}},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "question", got["type"])
	assert.Equal(t, false, got["done"])
	assert.Equal(t, "לאיזו ארוחה?", got["reply"])
	_, hasTitle := got["title"]
	assert.False(t, hasTitle)
}

func TestChatRecipe_ValidationBeforeModelCall(t *testing.T) {
	tests := []struct {
		name     string
		messages []models.ChatMessage
	}{
		{"empty history", []models.ChatMessage{}},
		{"bad role", []models.ChatMessage{{Role: "system", Content: "x"}}},
		{"empty content", []models.ChatMessage{{Role: "user", Content: ""}}},
		{"content too long", []models.ChatMessage{{Role: "user", Content: strings.Repeat("א", 6001)}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &fakeCompleter{reply: "x [[TYPE:QUESTION]]"}
			h := newAIHandler(c)

			rr := postJSON(t, h.ChatRecipe, "/api/v1/ai/chat-recipe", models.ChatRecipeRequest{Messages: tc.messages})

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			apiErr := decodeError(t, rr)
			assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
			assert.Equal(t, "req-1", apiErr.RequestID)
			assert.Zero(t, atomic.LoadInt32(&c.calls))
		})
	}
}

func TestChatRecipe_UpstreamFailure(t *testing.T) {
	h := newAIHandler(&fakeCompleter{err: &llm.UpstreamError{Provider: "openai", StatusCode: 503, Body: "overloaded"}})

	rr := postJSON(t, h.ChatRecipe, "/api/v1/ai/chat-recipe", models.ChatRecipeRequest{
		Messages: []models.ChatMessage{{Role: "user", Content: "שלום"}},
	})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	apiErr := decodeError(t, rr)
	assert.Equal(t, "AI_ERROR", apiErr.Code)
	assert.Contains(t, apiErr.Message, "overloaded")
}

func TestChatRecipe_InvalidBody(t *testing.T) {
	h := newAIHandler(&fakeCompleter{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/chat-recipe", strings.NewReader("{"))
	rr := httptest.NewRecorder()

	h.ChatRecipe(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAIHandlers_RejectOversizedBody(t *testing.T) {
	c := &fakeCompleter{reply: "x [[TYPE:QUESTION]]"}
	h := newAIHandler(c)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		path    string
		body    string
	}{
		{
			name:    "generate",
			handler: h.GenerateRecipe,
			path:    "/api/v1/ai/recipe",
			body:    `{"ingredients_text":"` + strings.Repeat("a", maxGenerateBodyBytes) + `"}`,
		},
		{
			name:    "chat",
			handler: h.ChatRecipe,
			path:    "/api/v1/ai/chat-recipe",
			body:    `{"messages":[{"role":"user","content":"` + strings.Repeat("a", maxChatBodyBytes) + `"}]}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			tc.handler(rr, req)

			assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
			assert.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")
		})
	}
	assert.Zero(t, atomic.LoadInt32(&c.calls))
}

func TestChatRecipe_LargestValidHistoryFitsBodyCap(t *testing.T) {
	c := &fakeCompleter{reply: "שאלה [[TYPE:QUESTION]]"}
	h := newAIHandler(c)

	messages := make([]models.ChatMessage, 500)
	for i := range messages {
		messages[i] = models.ChatMessage{Role: "user", Content: strings.Repeat("א", 6000)}
	}
	rr := postJSON(t, h.ChatRecipe, "/api/v1/ai/chat-recipe", models.ChatRecipeRequest{Messages: messages})

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGenerateRecipe(t *testing.T) {
	reply := `{"title":"אורז עם עוף","ingredients":"עוף, אורז","ingredients_text":"- 2 כוסות אורז","instructions":"1. מבשלים"}`
	h := newAIHandler(&fakeCompleter{reply: reply})

	rr := postJSON(t, h.GenerateRecipe, "/api/v1/ai/recipe", models.GenerateRecipeRequest{IngredientsText: "עוף, אורז"})

	require.Equal(t, http.StatusOK, rr.Code)
	var got models.GeneratedRecipe
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "אורז עם עוף", got.Title)
	assert.Equal(t, "עוף, אורז", got.Ingredients)
}

func TestGenerateRecipe_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		reply    string
		err      error
		wantCode int
		wantAPI  string
	}{
		{"blank input", "   ", "", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed reply", "עוף", "not json", nil, http.StatusInternalServerError, "AI_ERROR"},
		{"missing key", "עוף", `{"title":"x"}`, nil, http.StatusInternalServerError, "AI_ERROR"},
		{"transport failure", "עוף", "", errors.New("connection reset"), http.StatusInternalServerError, "AI_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newAIHandler(&fakeCompleter{reply: tc.reply, err: tc.err})

			rr := postJSON(t, h.GenerateRecipe, "/api/v1/ai/recipe", models.GenerateRecipeRequest{IngredientsText: tc.input})

			assert.Equal(t, tc.wantCode, rr.Code)
			assert.Equal(t, tc.wantAPI, decodeError(t, rr).Code)
		})
	}
}
