package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taamsimcha-backend/internal/models"
	"taamsimcha-backend/internal/repository"
)

type memRecipeStore struct {
	mu      sync.Mutex
	recipes map[uuid.UUID]*models.Recipe
	order   []uuid.UUID
}

func newMemRecipeStore() *memRecipeStore {
	return &memRecipeStore{recipes: map[uuid.UUID]*models.Recipe{}}
}

func (m *memRecipeStore) Create(ctx context.Context, userID uuid.UUID, in models.RecipeInput) (*models.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}
	rec := &models.Recipe{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       in.Title,
		Ingredients: in.Ingredients,
		Difficulty:  in.Difficulty,
		IsPublic:    isPublic,
		ShareToken:  uuid.New(),
		CreatedAt:   time.Now(),
	}
	m.recipes[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	cp := *rec
	return &cp, nil
}

func (m *memRecipeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recipes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *rec
	return &cp, nil
}

func (m *memRecipeStore) GetByShareToken(ctx context.Context, token uuid.UUID) (*models.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recipes {
		if rec.ShareToken == token {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memRecipeStore) Update(ctx context.Context, id uuid.UUID, in models.RecipeInput) (*models.Recipe, error) {
	m.mu.Lock()
	rec, ok := m.recipes[id]
	if !ok {
		m.mu.Unlock()
		return nil, pgx.ErrNoRows
	}
	rec.Title = in.Title
	rec.Ingredients = in.Ingredients
	rec.Difficulty = in.Difficulty
	if in.IsPublic != nil {
		rec.IsPublic = *in.IsPublic
	}
	m.mu.Unlock()
	return m.GetByID(ctx, id)
}

func (m *memRecipeStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recipes[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.recipes, id)
	return nil
}

func (m *memRecipeStore) filter(match func(*models.Recipe) bool) []models.Recipe {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Recipe{}
	for _, id := range m.order {
		if rec, ok := m.recipes[id]; ok && match(rec) {
			out = append(out, *rec)
		}
	}
	return out
}

func (m *memRecipeStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Recipe, error) {
	return m.filter(func(r *models.Recipe) bool { return r.UserID == userID }), nil
}

func (m *memRecipeStore) ListAll(ctx context.Context) ([]models.Recipe, error) {
	return m.filter(func(r *models.Recipe) bool { return true }), nil
}

func (m *memRecipeStore) ListPublic(ctx context.Context, sortBy string, limit, offset int) ([]models.Recipe, int, error) {
	public := m.filter(func(r *models.Recipe) bool { return r.IsPublic })
	total := len(public)
	if offset >= total {
		return []models.Recipe{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return public[offset:end], total, nil
}

func (m *memRecipeStore) RandomPublic(ctx context.Context, limit int) ([]models.Recipe, error) {
	public := m.filter(func(r *models.Recipe) bool { return r.IsPublic })
	if len(public) > limit {
		public = public[:limit]
	}
	return public, nil
}

func (m *memRecipeStore) Search(ctx context.Context, q models.RecipeSearch) ([]models.Recipe, error) {
	return m.filter(func(r *models.Recipe) bool { return r.IsPublic && (q.Title == "" || r.Title == q.Title) }), nil
}

func (m *memRecipeStore) Stats(ctx context.Context) (*models.AdminStats, error) {
	all, _ := m.ListAll(ctx)
	return &models.AdminStats{Recipes: len(all)}, nil
}

type memRatingStore struct {
	mu      sync.Mutex
	ratings map[[2]uuid.UUID]int
}

func newMemRatingStore() *memRatingStore {
	return &memRatingStore{ratings: map[[2]uuid.UUID]int{}}
}

func (m *memRatingStore) Upsert(ctx context.Context, userID, recipeID uuid.UUID, value int) (*models.Rating, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]uuid.UUID{userID, recipeID}
	_, exists := m.ratings[key]
	m.ratings[key] = value
	return &models.Rating{ID: uuid.New(), UserID: userID, RecipeID: recipeID, Rating: value}, !exists, nil
}

func (m *memRatingStore) Summary(ctx context.Context, recipeID uuid.UUID) (*models.RatingSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &models.RatingSummary{RecipeID: recipeID}
	sum := 0
	for key, v := range m.ratings {
		if key[1] == recipeID {
			sum += v
			s.Count++
		}
	}
	if s.Count > 0 {
		avg := float64(sum) / float64(s.Count)
		s.AverageRating = &avg
	}
	return s, nil
}

type recordingSink struct {
	recordingQueue
	mu     sync.Mutex
	events map[uuid.UUID][]models.WSMessage
}

func newRecordingSink() *recordingSink {
	return &recordingSink{events: map[uuid.UUID][]models.WSMessage{}}
}

func (s *recordingSink) PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[userID] = append(s.events[userID], msg)
}

type recipeFixture struct {
	svc     *RecipeService
	recipes *memRecipeStore
	users   *memUserStore
	sink    *recordingSink
}

func newRecipeFixture() *recipeFixture {
	recipes := newMemRecipeStore()
	users := newMemUserStore()
	sink := newRecordingSink()
	return &recipeFixture{
		svc:     NewRecipeService(recipes, newMemRatingStore(), users, sink, zap.NewNop()),
		recipes: recipes,
		users:   users,
		sink:    sink,
	}
}

func (f *recipeFixture) user(t *testing.T, name string, wantsEmails bool) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", WantsEmails: wantsEmails}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *recipeFixture) recipe(t *testing.T, owner uuid.UUID, public bool) *models.Recipe {
	t.Helper()
	rec, err := f.svc.Create(context.Background(), owner, models.RecipeInput{
		Title:       "שקשוקה",
		Ingredients: "ביצים, עגבניות",
		IsPublic:    &public,
	})
	require.NoError(t, err)
	return rec
}

func TestRecipeCreate_Validation(t *testing.T) {
	f := newRecipeFixture()

	_, err := f.svc.Create(context.Background(), uuid.New(), models.RecipeInput{Title: "  ", Difficulty: "extreme"})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "title")
	assert.Contains(t, verr.Fields, "ingredients")
	assert.Contains(t, verr.Fields, "difficulty")
}

func TestRecipeCreate_DefaultsDifficulty(t *testing.T) {
	f := newRecipeFixture()
	rec := f.recipe(t, uuid.New(), true)
	assert.Equal(t, models.DifficultyEasy, rec.Difficulty)
}

func TestRecipeGet_Visibility(t *testing.T) {
	f := newRecipeFixture()
	owner := uuid.New()
	private := f.recipe(t, owner, false)

	_, err := f.svc.Get(context.Background(), private.ID, owner, false)
	assert.NoError(t, err)

	_, err = f.svc.Get(context.Background(), private.ID, uuid.New(), true)
	assert.NoError(t, err, "admins see private recipes")

	_, err = f.svc.GetPublic(context.Background(), private.ID)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = f.svc.Get(context.Background(), uuid.New(), owner, false)
	assert.True(t, errors.As(err, &nf))
}

func TestRecipeUpdateDelete_Ownership(t *testing.T) {
	f := newRecipeFixture()
	owner := uuid.New()
	rec := f.recipe(t, owner, true)

	in := models.RecipeInput{Title: "שקשוקה חריפה", Ingredients: "ביצים", Difficulty: models.DifficultyMedium}

	_, err := f.svc.Update(context.Background(), rec.ID, uuid.New(), false, in)
	var forbidden *ForbiddenError
	require.True(t, errors.As(err, &forbidden))

	updated, err := f.svc.Update(context.Background(), rec.ID, owner, false, in)
	require.NoError(t, err)
	assert.Equal(t, "שקשוקה חריפה", updated.Title)

	err = f.svc.Delete(context.Background(), rec.ID, uuid.New(), false)
	require.True(t, errors.As(err, &forbidden))

	require.NoError(t, f.svc.Delete(context.Background(), rec.ID, uuid.New(), true))

	err = f.svc.Delete(context.Background(), rec.ID, owner, false)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestListPublic_Pagination(t *testing.T) {
	f := newRecipeFixture()
	owner := uuid.New()
	for i := 0; i < 10; i++ {
		f.recipe(t, owner, true)
	}
	f.recipe(t, owner, false)

	page, err := f.svc.ListPublic(context.Background(), models.SortRecent, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, page.Total)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Recipes, 2)

	_, err = f.svc.ListPublic(context.Background(), models.SortRecent, 0, 0)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = f.svc.ListPublic(context.Background(), "alphabetical", 1, 0)
	assert.True(t, errors.As(err, &verr))
}

func TestRate_NotifiesOwnerOnFirstRating(t *testing.T) {
	f := newRecipeFixture()
	owner := f.user(t, "chef", true)
	rater := f.user(t, "guest", true)
	rec := f.recipe(t, owner.ID, true)

	_, err := f.svc.Rate(context.Background(), rec.ID, rater.ID, 5)
	require.NoError(t, err)

	require.Len(t, f.sink.jobs, 1)
	job := f.sink.jobs[0]
	assert.Equal(t, models.JobRatingAlert, job.Type)
	assert.Equal(t, owner.Email, job.To)
	assert.Equal(t, "guest", job.RaterName)
	assert.Equal(t, 5, job.Rating)

	require.Len(t, f.sink.events[owner.ID], 1)
	event := f.sink.events[owner.ID][0]
	assert.Equal(t, "recipe_rated", event.Type)

	// Re-rating updates the value without a second notification.
	_, err = f.svc.Rate(context.Background(), rec.ID, rater.ID, 3)
	require.NoError(t, err)
	assert.Len(t, f.sink.jobs, 1)

	summary, err := f.svc.AverageRating(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, summary.AverageRating)
	assert.Equal(t, 3.0, *summary.AverageRating)
	assert.Equal(t, 1, summary.Count)
}

func TestRate_SkipsOptedOutAndSelfRatings(t *testing.T) {
	f := newRecipeFixture()
	owner := f.user(t, "chef", false)
	rater := f.user(t, "guest", true)
	rec := f.recipe(t, owner.ID, true)

	_, err := f.svc.Rate(context.Background(), rec.ID, rater.ID, 4)
	require.NoError(t, err)
	assert.Empty(t, f.sink.jobs)
	assert.Len(t, f.sink.events[owner.ID], 1)

	_, err = f.svc.Rate(context.Background(), rec.ID, owner.ID, 5)
	require.NoError(t, err)
	assert.Len(t, f.sink.events[owner.ID], 1)
}

func TestRate_RejectsOutOfRange(t *testing.T) {
	f := newRecipeFixture()
	rec := f.recipe(t, uuid.New(), true)

	for _, v := range []int{0, 6, -1} {
		_, err := f.svc.Rate(context.Background(), rec.ID, uuid.New(), v)
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "rating %d", v)
	}
}

func TestShareByEmail(t *testing.T) {
	f := newRecipeFixture()
	rec := f.recipe(t, uuid.New(), true)

	err := f.svc.ShareByEmail(context.Background(), uuid.New(), models.ShareRecipeRequest{RecipeID: rec.ID, Email: "not-an-email"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	require.NoError(t, f.svc.ShareByEmail(context.Background(), uuid.New(), models.ShareRecipeRequest{RecipeID: rec.ID, Email: " Friend@Example.com "}))
	require.Len(t, f.sink.jobs, 1)
	assert.Equal(t, models.JobRecipeShare, f.sink.jobs[0].Type)
	assert.Equal(t, "friend@example.com", f.sink.jobs[0].To)
	assert.Equal(t, rec.ID, f.sink.jobs[0].RecipeID)

	shared, err := f.svc.GetByShareToken(context.Background(), rec.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, shared.ID)
}

type memFavoriteStore struct {
	mu      sync.Mutex
	recipes *memRecipeStore
	favs    map[[2]uuid.UUID]time.Time
}

func (m *memFavoriteStore) Add(ctx context.Context, userID, recipeID uuid.UUID) (*models.Favorite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]uuid.UUID{userID, recipeID}
	if _, ok := m.favs[key]; ok {
		return nil, repository.ErrDuplicate
	}
	m.favs[key] = time.Now()
	return &models.Favorite{ID: uuid.New(), UserID: userID, RecipeID: recipeID}, nil
}

func (m *memFavoriteStore) Remove(ctx context.Context, userID, recipeID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]uuid.UUID{userID, recipeID}
	if _, ok := m.favs[key]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.favs, key)
	return nil
}

func (m *memFavoriteStore) ListRecipes(ctx context.Context, userID uuid.UUID) ([]models.Recipe, error) {
	m.mu.Lock()
	var ids []uuid.UUID
	for key := range m.favs {
		if key[0] == userID {
			ids = append(ids, key[1])
		}
	}
	m.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	out := []models.Recipe{}
	for _, id := range ids {
		rec, err := m.recipes.GetByID(ctx, id)
		if err == nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func TestFavorites(t *testing.T) {
	f := newRecipeFixture()
	favs := NewFavoriteService(&memFavoriteStore{recipes: f.recipes, favs: map[[2]uuid.UUID]time.Time{}}, f.svc)
	user := uuid.New()
	rec := f.recipe(t, uuid.New(), true)

	_, err := favs.Add(context.Background(), user, uuid.New())
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))

	_, err = favs.Add(context.Background(), user, rec.ID)
	require.NoError(t, err)

	_, err = favs.Add(context.Background(), user, rec.ID)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))

	list, err := favs.List(context.Background(), user)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)

	require.NoError(t, favs.Remove(context.Background(), user, rec.ID))
	err = favs.Remove(context.Background(), user, rec.ID)
	assert.True(t, errors.As(err, &nf))
}
