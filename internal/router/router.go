package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"taamsimcha-backend/internal/handlers"
	"taamsimcha-backend/internal/middleware"
	"taamsimcha-backend/internal/websocket"
)

type Deps struct {
	JWTAuth      *middleware.JWTAuth
	AdminChecker middleware.AdminChecker
	AuthLimiter  *middleware.RateLimiter
	AILimiter    *middleware.RateLimiter

	Auth      *handlers.AuthHandler
	Recipes   *handlers.RecipeHandler
	Favorites *handlers.FavoriteHandler
	Comments  *handlers.CommentHandler
	AI        *handlers.AIHandler
	WSHub     *websocket.Hub

	// UploadDir is served under /uploads/ when images are stored locally.
	UploadDir   string
	FrontendURL string
	Logger      *zap.Logger
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Observe(d.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(d.FrontendURL))

	requireAdmin := middleware.RequireAdmin(d.AdminChecker, d.Logger)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	if d.UploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(d.UploadDir))))
	}

	r.Get("/ws", d.WSHub.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes ────
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(d.AuthLimiter.Middleware)
				r.Post("/signup", d.Auth.Signup)
				r.Post("/login", d.Auth.Login)
				r.Post("/refresh", d.Auth.Refresh)
				r.Post("/forgot-password", d.Auth.ForgotPassword)
				r.Post("/reset-password", d.Auth.ResetPassword)
			})

			r.Group(func(r chi.Router) {
				r.Use(d.JWTAuth.Middleware)
				r.Post("/logout", d.Auth.Logout)
				r.Get("/me", d.Auth.Me)
				r.Put("/profile", d.Auth.UpdateProfile)
				r.Put("/update-profile-image", d.Auth.UpdateProfileImage)

				r.Route("/admin/users", func(r chi.Router) {
					r.Use(requireAdmin)
					r.Get("/", d.Auth.ListUsers)
					r.Delete("/{id}", d.Auth.DeleteUser)
				})
			})
		})

		// ──── Recipe Routes ────
		r.Route("/recipes", func(r chi.Router) {
			r.Get("/", d.Recipes.List)
			r.Get("/public-random", d.Recipes.PublicRandom)
			r.Get("/public/{id}", d.Recipes.GetPublic)
			r.Get("/search", d.Recipes.Search)
			r.Get("/sorted/{sort}", d.Recipes.Sorted)
			r.Get("/share/{token}", d.Recipes.GetShared)
			r.Get("/{id}/average-rating", d.Recipes.AverageRating)

			r.Group(func(r chi.Router) {
				r.Use(d.JWTAuth.Middleware)
				r.Post("/add", d.Recipes.Create)
				r.Get("/me", d.Recipes.Mine)
				r.Post("/upload-image", d.Recipes.UploadImage)
				r.Post("/share/send", d.Recipes.ShareByEmail)
				r.Get("/{id}", d.Recipes.Get)
				r.Put("/{id}", d.Recipes.Update)
				r.Delete("/{id}", d.Recipes.Delete)
				r.Post("/{id}/rate", d.Recipes.Rate)

				r.Route("/admin", func(r chi.Router) {
					r.Use(requireAdmin)
					r.Get("/recipes", d.Recipes.ListAll)
					r.Put("/recipes/{id}", d.Recipes.AdminUpdate)
					r.Delete("/recipes/{id}", d.Recipes.AdminDelete)
					r.Get("/stats", d.Recipes.Stats)
				})
			})
		})

		// ──── Favorite Routes ────
		r.Route("/favorites", func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			r.Get("/", d.Favorites.List)
			r.Post("/{recipeID}", d.Favorites.Add)
			r.Delete("/{recipeID}", d.Favorites.Remove)
		})

		// ──── Comment Routes ────
		r.Route("/comments", func(r chi.Router) {
			// {id} is the recipe for GET and POST and the comment for DELETE.
			r.With(d.JWTAuth.Optional).Get("/{id}", d.Comments.List)

			r.Group(func(r chi.Router) {
				r.Use(d.JWTAuth.Middleware)
				r.Post("/{id}", d.Comments.Add)
				r.Delete("/{id}", d.Comments.Delete)
			})
		})

		// ──── AI Routes ────
		r.Route("/ai", func(r chi.Router) {
			r.Use(d.AILimiter.Middleware)
			r.Post("/recipe", d.AI.GenerateRecipe)
			r.Post("/chat-recipe", d.AI.ChatRecipe)
		})
	})

	return r
}
