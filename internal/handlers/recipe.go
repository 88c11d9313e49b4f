package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"taamsimcha-backend/internal/middleware"
	"taamsimcha-backend/internal/models"
	"taamsimcha-backend/internal/services"
	"taamsimcha-backend/internal/storage"
)

// multipart overhead allowed on top of the image itself
const formOverhead = 1 << 20

type RecipeHandler struct {
	recipes *services.RecipeService
	images  storage.ImageStore
	logger  *zap.Logger
}

func NewRecipeHandler(recipes *services.RecipeService, images storage.ImageStore, logger *zap.Logger) *RecipeHandler {
	return &RecipeHandler{recipes: recipes, images: images, logger: logger}
}

func (h *RecipeHandler) List(w http.ResponseWriter, r *http.Request) {
	h.listPublic(w, r, models.SortRecent)
}

func (h *RecipeHandler) Sorted(w http.ResponseWriter, r *http.Request) {
	h.listPublic(w, r, chi.URLParam(r, "sort"))
}

func (h *RecipeHandler) listPublic(w http.ResponseWriter, r *http.Request, sort string) {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "page must be a number", r))
			return
		}
		page = n
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := h.recipes.ListPublic(r.Context(), sort, page, pageSize)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *RecipeHandler) PublicRandom(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.recipes.RandomPublic(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipes)
}

func (h *RecipeHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recipes, err := h.recipes.Search(r.Context(), models.RecipeSearch{
		Title:       q.Get("title"),
		Ingredient:  q.Get("ingredient"),
		CreatorName: q.Get("creator_name"),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipes)
}

func (h *RecipeHandler) Mine(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.recipes.ListMine(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipes)
}

// Create accepts either a JSON body or a multipart form with an optional "image" file.
func (h *RecipeHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readRecipeInput(w, r)
	if !ok {
		return
	}

	recipe, err := h.recipes.Create(r.Context(), middleware.GetUserID(r.Context()), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, recipe)
}

func (h *RecipeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "recipe")
	if !ok {
		return
	}

	recipe, err := h.recipes.Get(r.Context(), id, middleware.GetUserID(r.Context()), middleware.IsAdmin(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

func (h *RecipeHandler) GetPublic(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "recipe")
	if !ok {
		return
	}

	recipe, err := h.recipes.GetPublic(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

func (h *RecipeHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, false)
}

func (h *RecipeHandler) AdminUpdate(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, true)
}

func (h *RecipeHandler) update(w http.ResponseWriter, r *http.Request, asAdmin bool) {
	id, ok := parseIDParam(w, r, "id", "recipe")
	if !ok {
		return
	}
	in, ok := h.readRecipeInput(w, r)
	if !ok {
		return
	}

	recipe, err := h.recipes.Update(r.Context(), id, middleware.GetUserID(r.Context()), asAdmin, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

func (h *RecipeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, false)
}

func (h *RecipeHandler) AdminDelete(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, true)
}

func (h *RecipeHandler) delete(w http.ResponseWriter, r *http.Request, asAdmin bool) {
	id, ok := parseIDParam(w, r, "id", "recipe")
	if !ok {
		return
	}

	if err := h.recipes.Delete(r.Context(), id, middleware.GetUserID(r.Context()), asAdmin); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Recipe deleted"})
}

func (h *RecipeHandler) Rate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "recipe")
	if !ok {
		return
	}

	var req models.RateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	rating, err := h.recipes.Rate(r.Context(), id, middleware.GetUserID(r.Context()), req.Rating)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

func (h *RecipeHandler) AverageRating(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id", "recipe")
	if !ok {
		return
	}

	summary, err := h.recipes.AverageRating(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *RecipeHandler) GetShared(w http.ResponseWriter, r *http.Request) {
	token, ok := parseIDParam(w, r, "token", "share")
	if !ok {
		return
	}

	recipe, err := h.recipes.GetByShareToken(r.Context(), token)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipe)
}

func (h *RecipeHandler) ShareByEmail(w http.ResponseWriter, r *http.Request) {
	var req models.ShareRecipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.recipes.ShareByEmail(r.Context(), middleware.GetUserID(r.Context()), req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Recipe will be sent shortly"})
}

func (h *RecipeHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.recipes.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recipes)
}

func (h *RecipeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.recipes.Stats(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// UploadImage stores a standalone image and returns its public URL.
func (h *RecipeHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxImageBytes+formOverhead)
	if err := r.ParseMultipartForm(storage.MaxImageBytes + formOverhead); err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "Image exceeds 5MB limit", r))
		return
	}

	url, status, err := h.saveFormImage(r, "file")
	if err != nil {
		writeJSON(w, status, errorResp(imageErrorCode(status), err.Error(), r))
		return
	}
	if url == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No file provided", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *RecipeHandler) readRecipeInput(w http.ResponseWriter, r *http.Request) (models.RecipeInput, bool) {
	var in models.RecipeInput

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
			return in, false
		}
		return in, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxImageBytes+formOverhead)
	if err := r.ParseMultipartForm(storage.MaxImageBytes + formOverhead); err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "Image exceeds 5MB limit", r))
		return in, false
	}

	in = recipeInputFromForm(r)

	url, status, err := h.saveFormImage(r, "image")
	if err != nil {
		writeJSON(w, status, errorResp(imageErrorCode(status), err.Error(), r))
		return in, false
	}
	if url != "" {
		in.ImageURL = &url
	}
	return in, true
}

func recipeInputFromForm(r *http.Request) models.RecipeInput {
	optional := func(key string) *string {
		v := strings.TrimSpace(r.FormValue(key))
		if v == "" {
			return nil
		}
		return &v
	}

	in := models.RecipeInput{
		Title:        r.FormValue("title"),
		Description:  optional("description"),
		Ingredients:  r.FormValue("ingredients"),
		Instructions: optional("instructions"),
		VideoURL:     optional("video_url"),
		Difficulty:   r.FormValue("difficulty"),
		PrepTime:     optional("prep_time"),
	}
	if v := r.FormValue("is_public"); v != "" {
		public, err := strconv.ParseBool(v)
		if err == nil {
			in.IsPublic = &public
		}
	}
	return in
}

// saveFormImage returns "" without error when the form has no such file.
func (h *RecipeHandler) saveFormImage(r *http.Request, field string) (string, int, error) {
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", 0, nil
	}
	if err != nil {
		return "", http.StatusBadRequest, errors.New("Invalid image upload")
	}
	defer file.Close()

	// Read first 512 bytes for magic byte check
	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	contentType := http.DetectContentType(buf[:n])
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", http.StatusInternalServerError, errors.New("Failed to read image")
	}

	url, err := h.images.Save(r.Context(), contentType, file)
	if errors.Is(err, storage.ErrUnsupportedType) {
		return "", http.StatusUnsupportedMediaType, errors.New("Only JPEG, PNG, GIF and WebP images are supported")
	}
	if err != nil {
		h.logger.Error("image save failed", zap.Error(err))
		return "", http.StatusInternalServerError, errors.New("Failed to store image")
	}
	return url, 0, nil
}

func imageErrorCode(status int) string {
	switch status {
	case http.StatusUnsupportedMediaType:
		return "UNSUPPORTED_FORMAT"
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
