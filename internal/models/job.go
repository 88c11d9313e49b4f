package models

import (
	"time"

	"github.com/google/uuid"
)

// Email job kinds consumed by the worker pool.
const (
	JobPasswordReset = "password-reset"
	JobRatingAlert   = "rating-alert"
	JobRecipeShare   = "recipe-share"
)

type EmailJob struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	To         string    `json:"to"`
	Username   string    `json:"username,omitempty"`
	ResetLink  string    `json:"reset_link,omitempty"`
	RecipeID   uuid.UUID `json:"recipe_id,omitempty"`
	Rating     int       `json:"rating,omitempty"`
	RaterName  string    `json:"rater_name,omitempty"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type RatingEvent struct {
	RecipeID    uuid.UUID `json:"recipe_id"`
	RecipeTitle string    `json:"recipe_title"`
	Rating      int       `json:"rating"`
	RaterName   string    `json:"rater_name"`
}

type CommentEvent struct {
	RecipeID    uuid.UUID `json:"recipe_id"`
	RecipeTitle string    `json:"recipe_title"`
	CommentID   uuid.UUID `json:"comment_id"`
	Username    string    `json:"username"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
