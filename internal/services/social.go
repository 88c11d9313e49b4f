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
	"taamsimcha-backend/internal/repository"
)

const maxCommentLength = 2000

type favoriteStore interface {
	Add(ctx context.Context, userID, recipeID uuid.UUID) (*models.Favorite, error)
	Remove(ctx context.Context, userID, recipeID uuid.UUID) error
	ListRecipes(ctx context.Context, userID uuid.UUID) ([]models.Recipe, error)
}

type commentStore interface {
	Create(ctx context.Context, c *models.Comment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Comment, error)
	ListByRecipe(ctx context.Context, recipeID uuid.UUID) ([]models.Comment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type FavoriteService struct {
	favorites favoriteStore
	recipes   *RecipeService
}

func NewFavoriteService(favorites favoriteStore, recipes *RecipeService) *FavoriteService {
	return &FavoriteService{favorites: favorites, recipes: recipes}
}

func (s *FavoriteService) Add(ctx context.Context, userID, recipeID uuid.UUID) (*models.Favorite, error) {
	if _, err := s.recipes.Get(ctx, recipeID, userID, false); err != nil {
		return nil, err
	}
	fav, err := s.favorites.Add(ctx, userID, recipeID)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &ConflictError{Message: "Recipe already in favorites"}
		}
		return nil, fmt.Errorf("failed to add favorite: %w", err)
	}
	return fav, nil
}

func (s *FavoriteService) List(ctx context.Context, userID uuid.UUID) ([]models.Recipe, error) {
	return s.favorites.ListRecipes(ctx, userID)
}

func (s *FavoriteService) Remove(ctx context.Context, userID, recipeID uuid.UUID) error {
	if err := s.favorites.Remove(ctx, userID, recipeID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Message: "Favorite not found"}
		}
		return err
	}
	return nil
}

type CommentService struct {
	comments commentStore
	recipes  *RecipeService
	events   eventSink
	logger   *zap.Logger
}

func NewCommentService(comments commentStore, recipes *RecipeService, events eventSink, logger *zap.Logger) *CommentService {
	return &CommentService{comments: comments, recipes: recipes, events: events, logger: logger}
}

func (s *CommentService) Add(ctx context.Context, userID, recipeID uuid.UUID, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &ValidationError{Fields: map[string]string{"content": "Comment cannot be empty"}}
	}
	if len([]rune(content)) > maxCommentLength {
		return nil, &ValidationError{Fields: map[string]string{"content": fmt.Sprintf("Comment must be at most %d characters", maxCommentLength)}}
	}

	recipe, err := s.recipes.Get(ctx, recipeID, userID, false)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{UserID: userID, RecipeID: recipeID, Content: content}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}

	if recipe.UserID != userID {
		s.events.PublishUpdate(ctx, recipe.UserID, models.WSMessage{
			Type: "recipe_commented",
			Payload: models.CommentEvent{
				RecipeID:    recipe.ID,
				RecipeTitle: recipe.Title,
				CommentID:   comment.ID,
				Username:    comment.Username,
			},
		})
	}
	return comment, nil
}

func (s *CommentService) List(ctx context.Context, recipeID, callerID uuid.UUID, isAdmin bool) ([]models.Comment, error) {
	if _, err := s.recipes.Get(ctx, recipeID, callerID, isAdmin); err != nil {
		return nil, err
	}
	return s.comments.ListByRecipe(ctx, recipeID)
}

// Delete removes a comment. Only its author or an admin may do so.
func (s *CommentService) Delete(ctx context.Context, commentID, callerID uuid.UUID, isAdmin bool) error {
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Message: "Comment not found"}
		}
		return err
	}
	if comment.UserID != callerID && !isAdmin {
		return &ForbiddenError{Message: "You can only delete your own comments"}
	}
	if err := s.comments.Delete(ctx, commentID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	s.logger.Info("comment deleted", zap.String("comment_id", commentID.String()), zap.String("by", callerID.String()))
	return nil
}
