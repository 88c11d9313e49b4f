package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"taamsimcha-backend/internal/models"
)

const (
	DefaultPageSize   = 8
	randomRecipeCount = 6
)

type recipeStore interface {
	Create(ctx context.Context, userID uuid.UUID, in models.RecipeInput) (*models.Recipe, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recipe, error)
	GetByShareToken(ctx context.Context, token uuid.UUID) (*models.Recipe, error)
	Update(ctx context.Context, id uuid.UUID, in models.RecipeInput) (*models.Recipe, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Recipe, error)
	ListAll(ctx context.Context) ([]models.Recipe, error)
	ListPublic(ctx context.Context, sort string, limit, offset int) ([]models.Recipe, int, error)
	RandomPublic(ctx context.Context, limit int) ([]models.Recipe, error)
	Search(ctx context.Context, q models.RecipeSearch) ([]models.Recipe, error)
	Stats(ctx context.Context) (*models.AdminStats, error)
}

type ratingStore interface {
	Upsert(ctx context.Context, userID, recipeID uuid.UUID, value int) (*models.Rating, bool, error)
	Summary(ctx context.Context, recipeID uuid.UUID) (*models.RatingSummary, error)
}

type userLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// eventSink is satisfied by *Notifier.
type eventSink interface {
	EnqueueEmail(ctx context.Context, job models.EmailJob) error
	PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

type RecipeService struct {
	recipes recipeStore
	ratings ratingStore
	users   userLookup
	events  eventSink
	logger  *zap.Logger
}

func NewRecipeService(recipes recipeStore, ratings ratingStore, users userLookup, events eventSink, logger *zap.Logger) *RecipeService {
	return &RecipeService{
		recipes: recipes,
		ratings: ratings,
		users:   users,
		events:  events,
		logger:  logger,
	}
}

func validateRecipeInput(in *models.RecipeInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Ingredients = strings.TrimSpace(in.Ingredients)
	in.Difficulty = strings.TrimSpace(in.Difficulty)
	if in.Difficulty == "" {
		in.Difficulty = models.DifficultyEasy
	}

	fieldErrors := make(map[string]string)
	if in.Title == "" {
		fieldErrors["title"] = "Title is required"
	} else if len([]rune(in.Title)) > 255 {
		fieldErrors["title"] = "Title must be at most 255 characters"
	}
	if in.Ingredients == "" {
		fieldErrors["ingredients"] = "Ingredients are required"
	}
	if !models.ValidDifficulty(in.Difficulty) {
		fieldErrors["difficulty"] = "Difficulty must be one of קל, בינוני, קשה"
	}
	if len(fieldErrors) > 0 {
		return &ValidationError{Fields: fieldErrors}
	}
	return nil
}

func recipeNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Message: "Recipe not found"}
	}
	return err
}

func (s *RecipeService) Create(ctx context.Context, userID uuid.UUID, in models.RecipeInput) (*models.Recipe, error) {
	if err := validateRecipeInput(&in); err != nil {
		return nil, err
	}
	recipe, err := s.recipes.Create(ctx, userID, in)
	if err != nil {
		return nil, fmt.Errorf("failed to create recipe: %w", err)
	}
	s.logger.Info("recipe created", zap.String("recipe_id", recipe.ID.String()), zap.String("user_id", userID.String()))
	return recipe, nil
}

// Get returns a recipe visible to the caller: public ones, the caller's own, or
// any recipe for admins. Hidden recipes read as not found.
func (s *RecipeService) Get(ctx context.Context, id, callerID uuid.UUID, isAdmin bool) (*models.Recipe, error) {
	recipe, err := s.recipes.GetByID(ctx, id)
	if err != nil {
		return nil, recipeNotFound(err)
	}
	if !recipe.IsPublic && recipe.UserID != callerID && !isAdmin {
		return nil, &NotFoundError{Message: "Recipe not found"}
	}
	return recipe, nil
}

func (s *RecipeService) GetPublic(ctx context.Context, id uuid.UUID) (*models.Recipe, error) {
	return s.Get(ctx, id, uuid.Nil, false)
}

func (s *RecipeService) GetByShareToken(ctx context.Context, token uuid.UUID) (*models.Recipe, error) {
	recipe, err := s.recipes.GetByShareToken(ctx, token)
	if err != nil {
		return nil, recipeNotFound(err)
	}
	return recipe, nil
}

// Update replaces the recipe's fields. Only the owner may update unless asAdmin is set.
func (s *RecipeService) Update(ctx context.Context, id, callerID uuid.UUID, asAdmin bool, in models.RecipeInput) (*models.Recipe, error) {
	if err := s.authorizeOwner(ctx, id, callerID, asAdmin); err != nil {
		return nil, err
	}
	if err := validateRecipeInput(&in); err != nil {
		return nil, err
	}
	recipe, err := s.recipes.Update(ctx, id, in)
	if err != nil {
		return nil, recipeNotFound(err)
	}
	return recipe, nil
}

func (s *RecipeService) Delete(ctx context.Context, id, callerID uuid.UUID, asAdmin bool) error {
	if err := s.authorizeOwner(ctx, id, callerID, asAdmin); err != nil {
		return err
	}
	if err := s.recipes.Delete(ctx, id); err != nil {
		return recipeNotFound(err)
	}
	s.logger.Info("recipe deleted", zap.String("recipe_id", id.String()), zap.String("by", callerID.String()))
	return nil
}

func (s *RecipeService) authorizeOwner(ctx context.Context, id, callerID uuid.UUID, asAdmin bool) error {
	recipe, err := s.recipes.GetByID(ctx, id)
	if err != nil {
		return recipeNotFound(err)
	}
	if !asAdmin && recipe.UserID != callerID {
		return &ForbiddenError{Message: "You can only modify your own recipes"}
	}
	return nil
}

func (s *RecipeService) ListMine(ctx context.Context, userID uuid.UUID) ([]models.Recipe, error) {
	return s.recipes.ListByUser(ctx, userID)
}

func (s *RecipeService) ListAll(ctx context.Context) ([]models.Recipe, error) {
	return s.recipes.ListAll(ctx)
}

// ListPublic returns one page of public recipes in the given order.
func (s *RecipeService) ListPublic(ctx context.Context, sort string, page, pageSize int) (*models.RecipePage, error) {
	switch sort {
	case "", models.SortRecent, models.SortTopRated, models.SortRandom, models.SortFavorited:
	default:
		return nil, &ValidationError{Fields: map[string]string{"sort": "Unknown sort order"}}
	}
	if page < 1 {
		return nil, &ValidationError{Fields: map[string]string{"page": "Page must be at least 1"}}
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = DefaultPageSize
	}

	recipes, total, err := s.recipes.ListPublic(ctx, sort, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	return &models.RecipePage{
		Recipes:    recipes,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

func (s *RecipeService) RandomPublic(ctx context.Context) ([]models.Recipe, error) {
	return s.recipes.RandomPublic(ctx, randomRecipeCount)
}

func (s *RecipeService) Search(ctx context.Context, q models.RecipeSearch) ([]models.Recipe, error) {
	q.Title = strings.TrimSpace(q.Title)
	q.Ingredient = strings.TrimSpace(q.Ingredient)
	q.CreatorName = strings.TrimSpace(q.CreatorName)
	return s.recipes.Search(ctx, q)
}

func (s *RecipeService) Stats(ctx context.Context) (*models.AdminStats, error) {
	return s.recipes.Stats(ctx)
}

// Rate upserts the caller's rating. A first rating by someone other than the
// owner triggers a realtime event and, if the owner opted in, an email.
func (s *RecipeService) Rate(ctx context.Context, recipeID, raterID uuid.UUID, value int) (*models.Rating, error) {
	if value < 1 || value > 5 {
		return nil, &ValidationError{Fields: map[string]string{"rating": "Rating must be between 1 and 5"}}
	}

	recipe, err := s.Get(ctx, recipeID, raterID, false)
	if err != nil {
		return nil, err
	}

	rating, created, err := s.ratings.Upsert(ctx, raterID, recipeID, value)
	if err != nil {
		return nil, fmt.Errorf("failed to save rating: %w", err)
	}

	if created && recipe.UserID != raterID {
		s.notifyRating(ctx, recipe, raterID, value)
	}
	return rating, nil
}

func (s *RecipeService) notifyRating(ctx context.Context, recipe *models.Recipe, raterID uuid.UUID, value int) {
	raterName := ""
	if rater, err := s.users.GetByID(ctx, raterID); err == nil {
		raterName = rater.Username
	}

	s.events.PublishUpdate(ctx, recipe.UserID, models.WSMessage{
		Type: "recipe_rated",
		Payload: models.RatingEvent{
			RecipeID:    recipe.ID,
			RecipeTitle: recipe.Title,
			Rating:      value,
			RaterName:   raterName,
		},
	})

	owner, err := s.users.GetByID(ctx, recipe.UserID)
	if err != nil {
		s.logger.Warn("rating alert: owner lookup failed", zap.String("recipe_id", recipe.ID.String()), zap.Error(err))
		return
	}
	if !owner.WantsEmails {
		return
	}
	err = s.events.EnqueueEmail(ctx, models.EmailJob{
		Type:      models.JobRatingAlert,
		To:        owner.Email,
		Username:  owner.Username,
		RecipeID:  recipe.ID,
		Rating:    value,
		RaterName: raterName,
	})
	if err != nil {
		s.logger.Warn("rating alert: enqueue failed", zap.String("recipe_id", recipe.ID.String()), zap.Error(err))
	}
}

func (s *RecipeService) AverageRating(ctx context.Context, recipeID uuid.UUID) (*models.RatingSummary, error) {
	if _, err := s.recipes.GetByID(ctx, recipeID); err != nil {
		return nil, recipeNotFound(err)
	}
	return s.ratings.Summary(ctx, recipeID)
}

// ShareByEmail queues a PDF export of the recipe for the given address.
func (s *RecipeService) ShareByEmail(ctx context.Context, callerID uuid.UUID, req models.ShareRecipeRequest) error {
	to := normalizeEmail(req.Email)
	if !emailRegex.MatchString(to) {
		return &ValidationError{Fields: map[string]string{"email": "Invalid email format"}}
	}
	if _, err := s.Get(ctx, req.RecipeID, callerID, false); err != nil {
		return err
	}

	return s.events.EnqueueEmail(ctx, models.EmailJob{
		Type:     models.JobRecipeShare,
		To:       to,
		RecipeID: req.RecipeID,
	})
}
