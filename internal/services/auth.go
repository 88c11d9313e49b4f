package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"taamsimcha-backend/internal/middleware"
	"taamsimcha-backend/internal/models"
	"taamsimcha-backend/internal/repository"
)

const (
	refreshTokenTTL = 7 * 24 * time.Hour
	bcryptCost      = 12
)

type userStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	Delete(ctx context.Context, userID uuid.UUID) error
}

type emailQueue interface {
	EnqueueEmail(ctx context.Context, job models.EmailJob) error
}

type AuthService struct {
	users       userStore
	redis       *redis.Client
	jwt         *middleware.JWTAuth
	emails      emailQueue
	frontendURL string
	logger      *zap.Logger
}

func NewAuthService(users userStore, redisClient *redis.Client, jwt *middleware.JWTAuth, emails emailQueue, frontendURL string, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:       users,
		redis:       redisClient,
		jwt:         jwt,
		emails:      emails,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Signup(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)

	fieldErrors := make(map[string]string)
	if username == "" {
		fieldErrors["username"] = "Username is required"
	} else if len([]rune(username)) > 100 {
		fieldErrors["username"] = "Username must be at most 100 characters"
	}
	if !emailRegex.MatchString(email) {
		fieldErrors["email"] = "Invalid email format"
	}
	if err := validatePassword(req.Password); err != nil {
		fieldErrors["password"] = err.Error()
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, &ConflictError{Message: "Email already in use"}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, &ConflictError{Message: "Username already taken"}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	wantsEmails := true
	if req.WantsEmails != nil {
		wantsEmails = *req.WantsEmails
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		WantsEmails:  wantsEmails,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &ConflictError{Message: "Email or username already in use"}
		}
		return nil, err
	}

	s.logger.Info("user signed up", zap.String("user_id", user.ID.String()))
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthTokens, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnauthorizedError{Message: "Invalid email or password"}
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, &UnauthorizedError{Message: "Invalid email or password"}
	}

	return s.issueTokens(ctx, user)
}

func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	if refreshToken == "" {
		return nil, &UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
	}

	// GetDel makes rotation atomic: a refresh token can be exchanged once.
	userIDStr, err := s.redis.GetDel(ctx, "refresh:"+refreshToken).Result()
	if err != nil {
		return nil, &UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnauthorizedError{Message: "Account no longer exists"}
		}
		return nil, err
	}

	return s.issueTokens(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.redis.Del(ctx, "refresh:"+refreshToken).Err()
}

func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{Message: "User not found"}
	}
	return user, err
}

// IsAdmin satisfies middleware.AdminChecker.
func (s *AuthService) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return user.IsAdmin, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, req models.UpdateProfileRequest) (*models.User, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}

	fieldErrors := make(map[string]string)
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if username == "" {
			fieldErrors["username"] = "Username is required"
		} else if username != user.Username {
			if _, err := s.users.GetByUsername(ctx, username); err == nil {
				return nil, &ConflictError{Message: "Username already taken"}
			} else if !errors.Is(err, pgx.ErrNoRows) {
				return nil, err
			}
			user.Username = username
		}
	}
	if req.Password != nil {
		if err := validatePassword(*req.Password); err != nil {
			fieldErrors["password"] = err.Error()
		}
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	if req.WantsEmails != nil {
		user.WantsEmails = *req.WantsEmails
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &ConflictError{Message: "Username already taken"}
		}
		return nil, err
	}

	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
			return nil, err
		}
	}

	return user, nil
}

func (s *AuthService) UpdateProfileImage(ctx context.Context, userID uuid.UUID, imageURL string) (*models.User, error) {
	imageURL = strings.TrimSpace(imageURL)
	if u, err := url.Parse(imageURL); err != nil || imageURL == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &ValidationError{Fields: map[string]string{"image_url": "Must be an http(s) URL"}}
	}

	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.ProfileImageURL = &imageURL
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ForgotPassword queues a reset email when the address is registered. The
// outcome is not reported to the caller.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	jti, err := generateToken(16)
	if err != nil {
		return err
	}
	token, err := s.jwt.GenerateResetToken(user.ID, jti)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	if err := s.redis.Set(ctx, "pwreset:"+jti, user.ID.String(), middleware.ResetTokenTTL).Err(); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	return s.emails.EnqueueEmail(ctx, models.EmailJob{
		Type:      models.JobPasswordReset,
		To:        user.Email,
		Username:  user.Username,
		ResetLink: fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, url.QueryEscape(token)),
	})
}

func (s *AuthService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	if req.NewPassword != req.ConfirmPassword {
		return &ValidationError{Fields: map[string]string{"confirm_password": "Passwords do not match"}}
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return &ValidationError{Fields: map[string]string{"new_password": err.Error()}}
	}

	userID, jti, err := s.jwt.ParseResetToken(req.Token)
	if err != nil {
		return &UnauthorizedError{Message: "Invalid or expired reset token"}
	}

	stored, err := s.redis.GetDel(ctx, "pwreset:"+jti).Result()
	if err != nil || stored != userID.String() {
		return &UnauthorizedError{Message: "Invalid or expired reset token"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}

	s.logger.Info("password reset", zap.String("user_id", userID.String()))
	return nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.users.List(ctx)
}

func (s *AuthService) DeleteUser(ctx context.Context, adminID, targetID uuid.UUID) error {
	if adminID == targetID {
		return &ValidationError{Fields: map[string]string{"user_id": "Admins cannot delete their own account"}}
	}
	if err := s.users.Delete(ctx, targetID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Message: "User not found"}
		}
		return err
	}
	s.logger.Info("user deleted by admin", zap.String("admin_id", adminID.String()), zap.String("user_id", targetID.String()))
	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*models.AuthTokens, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.ID, user.IsAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := generateToken(64)
	if err != nil {
		return nil, err
	}

	err = s.redis.Set(ctx, "refresh:"+refreshToken, user.ID.String(), refreshTokenTTL).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &models.AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int(middleware.AccessTokenTTL.Seconds()),
		UserID:       user.ID,
	}, nil
}

func generateToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return fmt.Errorf("Password must be at least 8 characters")
	}
	hasNumber := false
	for _, ch := range pw {
		if unicode.IsDigit(ch) {
			hasNumber = true
			break
		}
	}
	if !hasNumber {
		return fmt.Errorf("Password must contain at least one number")
	}
	return nil
}
