package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"unicode/utf8"

	"smart-todos/internal/auth"
	"smart-todos/internal/model"
	"smart-todos/internal/repository"
)

const (
	minPasswordLen = 6
	// bcrypt ignores bytes past 72.
	maxPasswordLen = 72

	DemoEmail    = "demo@example.com"
	DemoPassword = "password"
)

// SignupInput is the payload of an account registration.
type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned after a successful signup, login or refresh.
type AuthResult struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	User         *model.User `json:"user"`
}

// AuthService handles accounts, credentials and tokens.
type AuthService struct {
	users  *repository.UserRepository
	tasks  *repository.TaskRepository
	tokens *auth.JWTManager
	hasher *auth.PasswordHasher
}

func NewAuthService(users *repository.UserRepository, tasks *repository.TaskRepository, tokens *auth.JWTManager, hasher *auth.PasswordHasher) *AuthService {
	return &AuthService{users: users, tasks: tasks, tokens: tokens, hasher: hasher}
}

func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*AuthResult, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, invalid("name", "name is required")
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(input.Password); n < minPasswordLen || len(input.Password) > maxPasswordLen {
		return nil, invalid("password", "must be between %d and %d characters", minPasswordLen, maxPasswordLen)
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	log.Printf("[info] user signed up id=%d", user.ID)
	return s.IssueFor(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.IssueFor(user)
}

// Authenticate resolves an access token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.ValidateAccessToken(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return s.userFromClaims(ctx, claims)
}

// Refresh trades a refresh token for a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return nil, err
	}
	return s.IssueFor(user)
}

func (s *AuthService) userFromClaims(ctx context.Context, claims *auth.Claims) (*model.User, error) {
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

// IssueFor creates a fresh token pair for an already verified user.
func (s *AuthService) IssueFor(user *model.User) (*AuthResult, error) {
	access, err := s.tokens.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokens.AccessTokenTTL().Seconds()),
		User:         user,
	}, nil
}

// LinkChat attaches a Telegram chat to the user.
func (s *AuthService) LinkChat(ctx context.Context, user *model.User, chatID int64) error {
	if err := s.users.LinkTelegram(ctx, user.ID, chatID); err != nil {
		return err
	}
	user.TelegramChatID = &chatID
	return nil
}

func (s *AuthService) UnlinkChat(ctx context.Context, chatID int64) error {
	return s.users.UnlinkTelegram(ctx, chatID)
}

// UserByChat returns the user linked to a chat, or ErrUnauthorized.
func (s *AuthService) UserByChat(ctx context.Context, chatID int64) (*model.User, error) {
	user, err := s.users.FindByTelegramChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return user, nil
}

// LinkedUsers lists users with a Telegram chat attached.
func (s *AuthService) LinkedUsers(ctx context.Context) ([]model.User, error) {
	return s.users.ListLinked(ctx)
}

// EnsureDemo creates the demo account and its sample todos when missing.
func (s *AuthService) EnsureDemo(ctx context.Context) error {
	user, err := s.users.FindByEmail(ctx, DemoEmail)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		hash, err := s.hasher.Hash(DemoPassword)
		if err != nil {
			return fmt.Errorf("hash demo password: %w", err)
		}
		user = &model.User{Name: "Demo User", Email: DemoEmail, PasswordHash: hash}
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		log.Printf("[info] created demo user %s", DemoEmail)
	default:
		return err
	}

	existing, err := s.tasks.ListAll(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	samples := []model.Task{
		{Title: "Review project proposal", Description: "Review and provide feedback on the Q1 project proposal", Priority: model.PriorityHigh, Category: "Work"},
		{Title: "Buy groceries", Description: "Milk, eggs, bread, and vegetables", Priority: model.PriorityMedium, Category: "Personal"},
		{Title: "Call dentist", Description: "Schedule annual checkup", Priority: model.PriorityLow, Category: "Health"},
	}
	for i := range samples {
		samples[i].UserID = user.ID
		if err := s.tasks.Create(ctx, &samples[i]); err != nil {
			return err
		}
	}
	log.Printf("[info] created %d sample todos for demo user", len(samples))
	return nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", invalid("email", "must be a valid email address")
	}
	return strings.ToLower(addr.Address), nil
}
