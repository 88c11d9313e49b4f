package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taamsimcha-backend/internal/models"
)

type RecipeRepo struct {
	pool *pgxpool.Pool
}

func NewRecipeRepo(pool *pgxpool.Pool) *RecipeRepo {
	return &RecipeRepo{pool: pool}
}

const recipeSelect = `SELECT r.id, r.user_id, r.title, r.description, r.ingredients, r.instructions,
		r.image_url, r.video_url, r.is_public, r.difficulty, r.prep_time, r.share_token, r.created_at,
		u.username,
		(SELECT AVG(rt.rating)::float8 FROM ratings rt WHERE rt.recipe_id = r.id) AS average_rating
	FROM recipes r
	JOIN users u ON u.id = r.user_id`

func scanRecipe(row pgx.Row) (*models.Recipe, error) {
	rec := &models.Recipe{}
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Title, &rec.Description, &rec.Ingredients, &rec.Instructions,
		&rec.ImageURL, &rec.VideoURL, &rec.IsPublic, &rec.Difficulty, &rec.PrepTime, &rec.ShareToken, &rec.CreatedAt,
		&rec.CreatorName, &rec.AverageRating,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func collectRecipes(rows pgx.Rows) ([]models.Recipe, error) {
	defer rows.Close()
	recipes := []models.Recipe{}
	for rows.Next() {
		rec, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, *rec)
	}
	return recipes, rows.Err()
}

func (r *RecipeRepo) Create(ctx context.Context, userID uuid.UUID, in models.RecipeInput) (*models.Recipe, error) {
	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}

	id := uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO recipes (id, user_id, title, description, ingredients, instructions,
			image_url, video_url, is_public, difficulty, prep_time, share_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, userID, in.Title, in.Description, in.Ingredients, in.Instructions,
		in.ImageURL, in.VideoURL, isPublic, in.Difficulty, in.PrepTime, uuid.New(),
	)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *RecipeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Recipe, error) {
	return scanRecipe(r.pool.QueryRow(ctx, recipeSelect+` WHERE r.id = $1`, id))
}

func (r *RecipeRepo) GetByShareToken(ctx context.Context, token uuid.UUID) (*models.Recipe, error) {
	return scanRecipe(r.pool.QueryRow(ctx, recipeSelect+` WHERE r.share_token = $1`, token))
}

func (r *RecipeRepo) Update(ctx context.Context, id uuid.UUID, in models.RecipeInput) (*models.Recipe, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE recipes SET title = $2, description = $3, ingredients = $4, instructions = $5,
			image_url = COALESCE($6, image_url), video_url = $7,
			is_public = COALESCE($8, is_public), difficulty = $9, prep_time = $10
		WHERE id = $1`,
		id, in.Title, in.Description, in.Ingredients, in.Instructions,
		in.ImageURL, in.VideoURL, in.IsPublic, in.Difficulty, in.PrepTime,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, pgx.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

func (r *RecipeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM recipes WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *RecipeRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Recipe, error) {
	rows, err := r.pool.Query(ctx, recipeSelect+` WHERE r.user_id = $1 ORDER BY r.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectRecipes(rows)
}

func (r *RecipeRepo) ListAll(ctx context.Context) ([]models.Recipe, error) {
	rows, err := r.pool.Query(ctx, recipeSelect+` ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collectRecipes(rows)
}

func orderClause(sort string) string {
	switch sort {
	case models.SortTopRated:
		return "average_rating DESC NULLS LAST, r.created_at DESC"
	case models.SortRandom:
		return "RANDOM()"
	case models.SortFavorited:
		return "(SELECT COUNT(*) FROM favorites f WHERE f.recipe_id = r.id) DESC, r.created_at DESC"
	default:
		return "r.created_at DESC"
	}
}

// ListPublic returns one page of public recipes and the total public count.
func (r *RecipeRepo) ListPublic(ctx context.Context, sort string, limit, offset int) ([]models.Recipe, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM recipes WHERE is_public = TRUE").Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`%s WHERE r.is_public = TRUE ORDER BY %s LIMIT $1 OFFSET $2`, recipeSelect, orderClause(sort))
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	recipes, err := collectRecipes(rows)
	return recipes, total, err
}

func (r *RecipeRepo) RandomPublic(ctx context.Context, limit int) ([]models.Recipe, error) {
	rows, err := r.pool.Query(ctx, recipeSelect+` WHERE r.is_public = TRUE ORDER BY RANDOM() LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectRecipes(rows)
}

// Search matches public recipes by case-insensitive substring on each non-empty criterion.
func (r *RecipeRepo) Search(ctx context.Context, q models.RecipeSearch) ([]models.Recipe, error) {
	conds := []string{"r.is_public = TRUE"}
	var args []interface{}
	argIdx := 1

	add := func(column, value string) {
		if value == "" {
			return
		}
		conds = append(conds, fmt.Sprintf("%s ILIKE $%d", column, argIdx))
		args = append(args, "%"+value+"%")
		argIdx++
	}
	add("r.title", q.Title)
	add("r.ingredients", q.Ingredient)
	add("u.username", q.CreatorName)

	query := recipeSelect + " WHERE " + strings.Join(conds, " AND ") + " ORDER BY r.created_at DESC"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRecipes(rows)
}

func (r *RecipeRepo) Stats(ctx context.Context) (*models.AdminStats, error) {
	s := &models.AdminStats{}
	err := r.pool.QueryRow(ctx, `SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM recipes),
			(SELECT COUNT(*) FROM recipes WHERE is_public = TRUE),
			(SELECT COUNT(*) FROM ratings),
			(SELECT COUNT(*) FROM comments),
			(SELECT COUNT(*) FROM favorites)`,
	).Scan(&s.Users, &s.Recipes, &s.PublicRecipes, &s.Ratings, &s.Comments, &s.Favorites)
	if err != nil {
		return nil, err
	}
	return s, nil
}
