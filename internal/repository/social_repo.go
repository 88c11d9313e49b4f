package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taamsimcha-backend/internal/models"
)

type FavoriteRepo struct {
	pool *pgxpool.Pool
}

func NewFavoriteRepo(pool *pgxpool.Pool) *FavoriteRepo {
	return &FavoriteRepo{pool: pool}
}

func (r *FavoriteRepo) Add(ctx context.Context, userID, recipeID uuid.UUID) (*models.Favorite, error) {
	f := &models.Favorite{ID: uuid.New(), UserID: userID, RecipeID: recipeID}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO favorites (id, user_id, recipe_id) VALUES ($1, $2, $3) RETURNING created_at`,
		f.ID, userID, recipeID,
	).Scan(&f.CreatedAt)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *FavoriteRepo) Remove(ctx context.Context, userID, recipeID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM favorites WHERE user_id = $1 AND recipe_id = $2", userID, recipeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *FavoriteRepo) ListRecipes(ctx context.Context, userID uuid.UUID) ([]models.Recipe, error) {
	rows, err := r.pool.Query(ctx, recipeSelect+`
		JOIN favorites fav ON fav.recipe_id = r.id
		WHERE fav.user_id = $1
		ORDER BY fav.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectRecipes(rows)
}

type RatingRepo struct {
	pool *pgxpool.Pool
}

func NewRatingRepo(pool *pgxpool.Pool) *RatingRepo {
	return &RatingRepo{pool: pool}
}

// Upsert stores the user's rating for a recipe. created reports whether this
// was the user's first rating of it.
func (r *RatingRepo) Upsert(ctx context.Context, userID, recipeID uuid.UUID, value int) (rating *models.Rating, created bool, err error) {
	rating = &models.Rating{UserID: userID, RecipeID: recipeID, Rating: value}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO ratings (id, user_id, recipe_id, rating)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, recipe_id) DO UPDATE SET rating = EXCLUDED.rating
		RETURNING id, created_at, (xmax = 0)`,
		uuid.New(), userID, recipeID, value,
	).Scan(&rating.ID, &rating.CreatedAt, &created)
	if err != nil {
		return nil, false, err
	}
	return rating, created, nil
}

func (r *RatingRepo) Summary(ctx context.Context, recipeID uuid.UUID) (*models.RatingSummary, error) {
	s := &models.RatingSummary{RecipeID: recipeID}
	err := r.pool.QueryRow(ctx,
		`SELECT AVG(rating)::float8, COUNT(*) FROM ratings WHERE recipe_id = $1`, recipeID,
	).Scan(&s.AverageRating, &s.Count)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type CommentRepo struct {
	pool *pgxpool.Pool
}

func NewCommentRepo(pool *pgxpool.Pool) *CommentRepo {
	return &CommentRepo{pool: pool}
}

func (r *CommentRepo) Create(ctx context.Context, c *models.Comment) error {
	c.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO comments (id, user_id, recipe_id, content)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, user_id
		)
		SELECT i.created_at, u.username FROM inserted i JOIN users u ON u.id = i.user_id`,
		c.ID, c.UserID, c.RecipeID, c.Content,
	).Scan(&c.CreatedAt, &c.Username)
}

func (r *CommentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	c := &models.Comment{}
	err := r.pool.QueryRow(ctx, `
		SELECT c.id, c.user_id, c.recipe_id, c.content, c.created_at, u.username
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.id = $1`, id,
	).Scan(&c.ID, &c.UserID, &c.RecipeID, &c.Content, &c.CreatedAt, &c.Username)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CommentRepo) ListByRecipe(ctx context.Context, recipeID uuid.UUID) ([]models.Comment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.user_id, c.recipe_id, c.content, c.created_at, u.username
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.recipe_id = $1
		ORDER BY c.created_at DESC`, recipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.UserID, &c.RecipeID, &c.Content, &c.CreatedAt, &c.Username); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r *CommentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM comments WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
