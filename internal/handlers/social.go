package handlers

import (
	"encoding/json"
	"net/http"

	"taamsimcha-backend/internal/middleware"
	"taamsimcha-backend/internal/models"
	"taamsimcha-backend/internal/services"
)

type FavoriteHandler struct {
	favorites *services.FavoriteService
}

func NewFavoriteHandler(favorites *services.FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{favorites: favorites}
}

func (h *FavoriteHandler) Add(w http.ResponseWriter, r *http.Request) {
	recipeID, ok := parseIDParam(w, r, "recipeID", "recipe")
	if !ok {
		return
	}

	fav, err := h.favorites.Add(r.Context(), middleware.GetUserID(r.Context()), recipeID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fav)
}

func (h *FavoriteHandler) List(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.favorites.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipes)
}

func (h *FavoriteHandler) Remove(w http.ResponseWriter, r *http.Request) {
	recipeID, ok := parseIDParam(w, r, "recipeID", "recipe")
	if !ok {
		return
	}

	if err := h.favorites.Remove(r.Context(), middleware.GetUserID(r.Context()), recipeID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Removed from favorites"})
}

type CommentHandler struct {
	comments *services.CommentService
}

func NewCommentHandler(comments *services.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

func (h *CommentHandler) Add(w http.ResponseWriter, r *http.Request) {
	recipeID, ok := parseIDParam(w, r, "id", "recipe")
	if !ok {
		return
	}

	var req models.CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	comment, err := h.comments.Add(r.Context(), middleware.GetUserID(r.Context()), recipeID, req.Content)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	recipeID, ok := parseIDParam(w, r, "id", "recipe")
	if !ok {
		return
	}

	comments, err := h.comments.List(r.Context(), recipeID, middleware.GetUserID(r.Context()), middleware.IsAdmin(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	commentID, ok := parseIDParam(w, r, "id", "comment")
	if !ok {
		return
	}

	err := h.comments.Delete(r.Context(), commentID, middleware.GetUserID(r.Context()), middleware.IsAdmin(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Comment deleted"})
}
