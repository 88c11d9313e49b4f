package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taamsimcha-backend/internal/llm"
	"taamsimcha-backend/internal/models"
)

func newTestGenerator(stub *stubCompleter) *RecipeGenerator {
	return NewRecipeGenerator(stub, time.Second, zap.NewNop())
}

func TestGenerate_RoundTripsFourKeys(t *testing.T) {
	want := models.GeneratedRecipe{
		Title:           "אורז עם עוף",
		Ingredients:     "עוף, אורז",
		IngredientsText: "- 2 כוסות אורז\n- 500 גרם עוף",
		Instructions:    "1. לבשל את האורז\n2. לצלות את העוף",
	}
	body, err := json.Marshal(want)
	require.NoError(t, err)
	stub := &stubCompleter{reply: string(body)}

	got, err := newTestGenerator(stub).Generate(context.Background(), "עוף, אורז")
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestGenerate_RequestShape(t *testing.T) {
	stub := &stubCompleter{reply: `{"title":"a","ingredients":"b","ingredients_text":"c","instructions":"d"}`}

	_, err := newTestGenerator(stub).Generate(context.Background(), "ביצים, עגבניות")
	require.NoError(t, err)
	require.Len(t, stub.calls, 1)

	req := stub.calls[0]
	assert.Empty(t, req.System)
	assert.True(t, req.JSON)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, 700, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, llm.RoleUser, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, `"""ביצים, עגבניות"""`)
	assert.Contains(t, req.Messages[0].Content, "מלח, פלפל, שמן, מים")
	assert.Contains(t, req.Messages[0].Content, "נא להזין רכיבים אכילים להכנת מתכון")
}

func TestGenerate_NonEdibleFallbackPassesThrough(t *testing.T) {
	input := "עגבניות, מלפפון, סבון"
	stub := &stubCompleter{reply: `{
		"title": "נא להזין רכיבים אכילים להכנת מתכון",
		"ingredients": "עגבניות, מלפפון, סבון",
		"ingredients_text": "",
		"instructions": ""
	}`}

	got, err := newTestGenerator(stub).Generate(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "נא להזין רכיבים אכילים להכנת מתכון", got.Title)
	assert.Equal(t, input, got.Ingredients)
	assert.Equal(t, "", got.IngredientsText)
	assert.Equal(t, "", got.Instructions)
	require.Len(t, stub.calls, 1)
	assert.Contains(t, stub.calls[0].Messages[0].Content, input)
}

func TestGenerate_MalformedReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "הנה מתכון: אורז"},
		{"json array", `["title"]`},
		{"missing instructions", `{"title":"a","ingredients":"b","ingredients_text":"c"}`},
		{"non-string title", `{"title":1,"ingredients":"b","ingredients_text":"c","instructions":"d"}`},
		{"null field", `{"title":"a","ingredients":null,"ingredients_text":"c","instructions":"d"}`},
		{"fenced json", "```json\n{\"title\":\"a\",\"ingredients\":\"b\",\"ingredients_text\":\"c\",\"instructions\":\"d\"}\n```"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubCompleter{reply: tc.reply}

			got, err := newTestGenerator(stub).Generate(context.Background(), "עוף")
			assert.Nil(t, got)

			var aiErr *AIError
			require.True(t, errors.As(err, &aiErr), "expected AIError, got %v", err)
			assert.NotEmpty(t, aiErr.Cause)
			assert.Equal(t, 1, stub.callCount(), "no retry on malformed output")
		})
	}
}

func TestGenerate_ExtraKeysIgnored(t *testing.T) {
	stub := &stubCompleter{reply: `{"title":"a","ingredients":"b","ingredients_text":"c","instructions":"d","notes":"x"}`}

	got, err := newTestGenerator(stub).Generate(context.Background(), "עוף")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title)
}

func TestGenerate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"blank", "   \n\t"},
		{"too long", strings.Repeat("א", 6001)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubCompleter{reply: "{}"}

			_, err := newTestGenerator(stub).Generate(context.Background(), tc.input)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, "ingredients_text")
			assert.Equal(t, 0, stub.callCount())
		})
	}
}

func TestGenerate_UpstreamError(t *testing.T) {
	stub := &stubCompleter{err: &llm.UpstreamError{Provider: "openai", StatusCode: 401, Body: "invalid api key"}}

	_, err := newTestGenerator(stub).Generate(context.Background(), "עוף")

	var aiErr *AIError
	require.True(t, errors.As(err, &aiErr))
	assert.Contains(t, aiErr.Cause, "401")
	assert.Contains(t, aiErr.Cause, "invalid api key")
}
