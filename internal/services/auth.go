package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	userrepo "github.com/mnemos-app/mnemos-backend/internal/data/repos/user"
	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/apierr"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

type AuthConfig struct {
	JWTSecret []byte
	TokenTTL  time.Duration
}

type AuthService struct {
	users userrepo.Repo
	log   *logger.Logger
	cfg   AuthConfig
}

func NewAuthService(users userrepo.Repo, log *logger.Logger, cfg AuthConfig) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &AuthService{
		users: users,
		log:   log.With("service", "AuthService"),
		cfg:   cfg,
	}
}

type Credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

type AuthResult struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

func (s *AuthService) Register(ctx context.Context, creds Credentials) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apierr.New(http.StatusBadRequest, "invalid_email", errors.New("a valid email is required"))
	}
	if len(creds.Password) < 8 {
		return nil, apierr.New(http.StatusBadRequest, "weak_password", errors.New("password must be at least 8 characters"))
	}

	exists, err := s.users.EmailExists(ctx, nil, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apierr.New(http.StatusConflict, "email_taken", errors.New("email already registered"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(creds.DisplayName),
	}
	if err := s.users.Create(ctx, nil, u); err != nil {
		return nil, err
	}

	token, err := s.signToken(u.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("User registered", "user_id", u.ID.String())
	return &AuthResult{User: u, Token: token}, nil
}

func (s *AuthService) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))

	u, err := s.users.GetByEmail(ctx, nil, email)
	if errors.Is(err, userrepo.ErrNotFound) {
		return nil, apierr.New(http.StatusUnauthorized, "invalid_credentials", errors.New("invalid email or password"))
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(creds.Password)) != nil {
		return nil, apierr.New(http.StatusUnauthorized, "invalid_credentials", errors.New("invalid email or password"))
	}

	token, err := s.signToken(u.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Token: token}, nil
}

func (s *AuthService) signToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.JWTSecret)
}

// ParseToken validates a bearer token and returns the user it names.
func (s *AuthService) ParseToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.cfg.JWTSecret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return uuid.Nil, errors.New("invalid token")
	}
	return uuid.Parse(claims.Subject)
}
