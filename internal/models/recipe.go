package models

import (
	"time"

	"github.com/google/uuid"
)

// Difficulty levels stored verbatim in Hebrew.
const (
	DifficultyEasy   = "קל"
	DifficultyMedium = "בינוני"
	DifficultyHard   = "קשה"
)

func ValidDifficulty(d string) bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type Recipe struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Title         string    `json:"title"`
	Description   *string   `json:"description"`
	Ingredients   string    `json:"ingredients"`
	Instructions  *string   `json:"instructions"`
	ImageURL      *string   `json:"image_url"`
	VideoURL      *string   `json:"video_url"`
	IsPublic      bool      `json:"is_public"`
	Difficulty    string    `json:"difficulty"`
	PrepTime      *string   `json:"prep_time"`
	ShareToken    uuid.UUID `json:"share_token"`
	CreatedAt     time.Time `json:"created_at"`
	CreatorName   string    `json:"creator_name"`
	AverageRating *float64  `json:"average_rating"`
}

// RecipeInput is the writable subset of a recipe, shared by create and update.
type RecipeInput struct {
	Title        string  `json:"title"`
	Description  *string `json:"description"`
	Ingredients  string  `json:"ingredients"`
	Instructions *string `json:"instructions"`
	ImageURL     *string `json:"image_url"`
	VideoURL     *string `json:"video_url"`
	IsPublic     *bool   `json:"is_public"`
	Difficulty   string  `json:"difficulty"`
	PrepTime     *string `json:"prep_time"`
}

type RecipePage struct {
	Recipes    []Recipe `json:"recipes"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// Recipe listing orders.
const (
	SortRecent    = "recent"
	SortTopRated  = "top-rated"
	SortRandom    = "random"
	SortFavorited = "favorited"
)

type RecipeSearch struct {
	Title       string
	Ingredient  string
	CreatorName string
}

type ShareRecipeRequest struct {
	RecipeID uuid.UUID `json:"recipe_id"`
	Email    string    `json:"email"`
}

type AdminStats struct {
	Users         int `json:"users"`
	Recipes       int `json:"recipes"`
	PublicRecipes int `json:"public_recipes"`
	Ratings       int `json:"ratings"`
	Comments      int `json:"comments"`
	Favorites     int `json:"favorites"`
}
