package models

// Chat roles accepted from clients.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a recipe negotiation. Order within a history is significant.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=6000"`
}

// ChatRecipeRequest carries the whole conversation; the server keeps no session.
type ChatRecipeRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required,min=1,max=500,dive"`
}

// TurnType is the protocol state reported by the model for one turn.
type TurnType string

const (
	TurnQuestion TurnType = "question"
	TurnConfirm  TurnType = "confirm"
	TurnRecipe   TurnType = "recipe"
)

type TurnResult struct {
	Type  TurnType `json:"type"`
	Done  bool     `json:"done"`
	Reply string   `json:"reply"`
	Title *string  `json:"title,omitempty"`
}

type GenerateRecipeRequest struct {
	IngredientsText string `json:"ingredients_text" validate:"required,max=6000"`
}

// GeneratedRecipe is the strict JSON shape returned by the single-shot generator.
type GeneratedRecipe struct {
	Title           string `json:"title"`
	Ingredients     string `json:"ingredients"`
	IngredientsText string `json:"ingredients_text"`
	Instructions    string `json:"instructions"`
}
