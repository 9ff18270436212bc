// Package auth authenticates admin users for the settings and catalog endpoints.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auswanderer-plattform/backend/internal/config"
	"github.com/auswanderer-plattform/backend/internal/models"
)

const minPasswordLength = 12

// UserStore loads and creates admin users
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	Create(ctx context.Context, user *models.AdminUser) error
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Service handles admin authentication
type Service struct {
	users  UserStore
	config *config.JWTConfig
	now    func() time.Time
}

// NewService creates a new auth service
func NewService(users UserStore, jwtCfg *config.JWTConfig) *Service {
	return &Service{users: users, config: jwtCfg, now: time.Now}
}

// Claims represents JWT claims
type Claims struct {
	UserID string           `json:"user_id"`
	Email  string           `json:"email"`
	Role   models.AdminRole `json:"role"`
	jwt.RegisteredClaims
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the access token
type LoginResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Role        models.AdminRole `json:"role"`
}

// Login verifies the password and issues an access token
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Same error as a wrong password so emails cannot be probed
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	token, expires, err := s.issueToken(user, now)
	if err != nil {
		return nil, err
	}
	_ = s.users.TouchLogin(ctx, user.ID, now)

	return &LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expires,
		Role:        user.Role,
	}, nil
}

// CreateAdmin hashes the password and stores a new admin
func (s *Service) CreateAdmin(ctx context.Context, email, password string, role models.AdminRole) (*models.AdminUser, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.AdminUser{
		ID:           uuid.New(),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ValidateToken validates an access token and returns its claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject != "access" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) issueToken(user *models.AdminUser, now time.Time) (string, time.Time, error) {
	expires := now.Add(s.config.AccessTokenExpiry)

	claims := &Claims{
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "access",
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        generateJTI(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expires, nil
}

// PgUserStore keeps admins in admin_users
type PgUserStore struct {
	db *pgxpool.Pool
}

// NewPgUserStore creates a Postgres user store
func NewPgUserStore(db *pgxpool.Pool) *PgUserStore {
	return &PgUserStore{db: db}
}

// FindByEmail returns ErrUserNotFound when no admin has that email
func (s *PgUserStore) FindByEmail(ctx context.Context, email string) (*models.AdminUser, error) {
	var u models.AdminUser
	err := s.db.QueryRow(ctx, `
		SELECT id, email, password_hash, role, created_at, last_login_at
		FROM admin_users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}
	return &u, nil
}

// Create inserts an admin; a duplicate email is ErrEmailAlreadyExists
func (s *PgUserStore) Create(ctx context.Context, u *models.AdminUser) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO admin_users (id, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, u.ID, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailAlreadyExists
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}
	return nil
}

// TouchLogin records the last successful login
func (s *PgUserStore) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE admin_users SET last_login_at = $2 WHERE id = $1`, id, at)
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateJTI generates a unique JWT ID
func generateJTI() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
