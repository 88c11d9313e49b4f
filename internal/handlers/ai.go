package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"taamsimcha-backend/internal/models"
)

type recipeNegotiator interface {
	Negotiate(ctx context.Context, history []models.ChatMessage) (*models.TurnResult, error)
}

type recipeGenerator interface {
	Generate(ctx context.Context, ingredientsText string) (*models.GeneratedRecipe, error)
}

// Body caps sized for the largest valid request: 500 messages of 6000 runes,
// allowing six bytes per rune for JSON escapes.
const (
	maxChatBodyBytes     = 500*(6000*6+64) + 1<<10
	maxGenerateBodyBytes = 6000*6 + 1<<10
)

// AIHandler exposes the chat negotiator and the single-shot generator.
type AIHandler struct {
	negotiator recipeNegotiator
	generator  recipeGenerator
}

func NewAIHandler(negotiator recipeNegotiator, generator recipeGenerator) *AIHandler {
	return &AIHandler{negotiator: negotiator, generator: generator}
}

func (h *AIHandler) ChatRecipe(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRecipeRequest
	if !decodeLimitedJSON(w, r, maxChatBodyBytes, &req) {
		return
	}

	result, err := h.negotiator.Negotiate(r.Context(), req.Messages)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *AIHandler) GenerateRecipe(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRecipeRequest
	if !decodeLimitedJSON(w, r, maxGenerateBodyBytes, &req) {
		return
	}

	recipe, err := h.generator.Generate(r.Context(), req.IngredientsText)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, recipe)
}

// decodeLimitedJSON rejects bodies over limit with 413 before they are fully read.
func decodeLimitedJSON(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("PAYLOAD_TOO_LARGE", "Request body too large", r))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return false
	}
	return true
}
