package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"taamsimcha-backend/internal/llm"
	"taamsimcha-backend/internal/models"
)

const (
	generateTemperature = 0.7
	generateMaxTokens   = 700
)

// RecipeGenerator turns a free-text ingredient list into one recipe with a single model call.
type RecipeGenerator struct {
	llm     llm.Completer
	timeout time.Duration
	logger  *zap.Logger
}

func NewRecipeGenerator(completer llm.Completer, timeout time.Duration, logger *zap.Logger) *RecipeGenerator {
	return &RecipeGenerator{llm: completer, timeout: timeout, logger: logger}
}

func (g *RecipeGenerator) Generate(ctx context.Context, ingredientsText string) (*models.GeneratedRecipe, error) {
	if err := validateStruct(models.GenerateRecipeRequest{IngredientsText: ingredientsText}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ingredientsText) == "" {
		return nil, &ValidationError{Fields: map[string]string{"ingredients_text": "This field is required"}}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	raw, err := g.llm.Complete(ctx, llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildGeneratorPrompt(ingredientsText)}},
		Temperature: generateTemperature,
		MaxTokens:   generateMaxTokens,
		JSON:        true,
	})
	if err != nil {
		g.logger.Warn("recipe generation failed", zap.Error(err))
		return nil, newAIError(err)
	}

	recipe, err := parseGeneratedRecipe(raw)
	if err != nil {
		g.logger.Warn("recipe generation returned malformed JSON", zap.Error(err))
		return nil, newAIError(err)
	}
	return recipe, nil
}

// parseGeneratedRecipe requires a JSON object with all four string keys.
// There is no repair of partial output.
func parseGeneratedRecipe(raw string) (*models.GeneratedRecipe, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("model reply is not a JSON object: %w", err)
	}

	keys := []string{"title", "ingredients", "ingredients_text", "instructions"}
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		rawValue, ok := obj[key]
		if !ok {
			return nil, fmt.Errorf("model reply is missing %q", key)
		}
		var s *string
		if err := json.Unmarshal(rawValue, &s); err != nil || s == nil {
			return nil, fmt.Errorf("model reply field %q is not a string", key)
		}
		values[key] = *s
	}

	return &models.GeneratedRecipe{
		Title:           values["title"],
		Ingredients:     values["ingredients"],
		IngredientsText: values["ingredients_text"],
		Instructions:    values["instructions"],
	}, nil
}
