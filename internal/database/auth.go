package database

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/onetask/internal/backend"
	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenIssuer       = "onetask"
	minPasswordLength = 6
)

// ErrEmailTaken is returned by SignUp for an already registered email.
var ErrEmailTaken = errors.New("user already registered")

type userRow struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers an account and signs it in.
func (db *DB) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("sign up failed: invalid email address")
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("sign up failed: password must be at least %d characters", minPasswordLength)
	}

	var existing int
	if err := db.GetContext(ctx, &existing, db.Rebind(`SELECT COUNT(*) FROM users WHERE email = ?`), email); err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{ID: uuid.New(), Email: email}
	_, err = db.ExecContext(ctx,
		db.Rebind(`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`),
		user.ID.String(), user.Email, string(hash), formatTime(db.timestamp()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	db.logger.Info("user_registered", zap.String("user_id", user.ID.String()))
	return db.issueSession(ctx, user)
}

// SignIn checks the password and issues a session.
func (db *DB) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	var row userRow
	err := db.GetContext(ctx, &row,
		db.Rebind(`SELECT id, email, password_hash FROM users WHERE email = ?`),
		normalizeEmail(email),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		return nil, backend.ErrInvalidCredentials
	}

	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", row.ID, err)
	}
	return db.issueSession(ctx, models.User{ID: id, Email: row.Email})
}

// Refresh rotates a refresh token. The presented token is consumed.
func (db *DB) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin refresh: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row struct {
		UserID    string `db:"user_id"`
		ExpiresAt string `db:"expires_at"`
		Email     string `db:"email"`
	}
	err = tx.GetContext(ctx, &row, db.Rebind(`
		SELECT r.user_id, r.expires_at, u.email
		FROM refresh_tokens r JOIN users u ON u.id = r.user_id
		WHERE r.token_hash = ?`), hashToken(refreshToken))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if _, err := tx.ExecContext(ctx, db.Rebind(`DELETE FROM refresh_tokens WHERE token_hash = ?`), hashToken(refreshToken)); err != nil {
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit refresh: %w", err)
	}

	expires, err := parseTime(row.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if !db.timestamp().Before(expires) {
		return nil, backend.ErrInvalidCredentials
	}

	id, err := uuid.Parse(row.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", row.UserID, err)
	}
	return db.issueSession(ctx, models.User{ID: id, Email: row.Email})
}

// SignOut revokes every refresh token of the access token's user.
func (db *DB) SignOut(ctx context.Context, accessToken string) error {
	userID, err := db.VerifyAccessToken(accessToken)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM refresh_tokens WHERE user_id = ?`), userID.String()); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	db.logger.Info("user_signed_out", zap.String("user_id", userID.String()))
	return nil
}

// VerifyAccessToken validates a token minted by this database and returns its subject.
func (db *DB) VerifyAccessToken(accessToken string) (uuid.UUID, error) {
	tok, err := jwt.Parse([]byte(accessToken),
		jwt.WithKey(jwa.HS256, db.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithClock(jwt.ClockFunc(db.now)),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", backend.ErrNotAuthenticated, err)
	}
	id, err := uuid.Parse(tok.Subject())
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid subject", backend.ErrNotAuthenticated)
	}
	return id, nil
}

func (db *DB) issueSession(ctx context.Context, user models.User) (*models.Session, error) {
	now := db.timestamp()
	expires := now.Add(db.accessTTL)

	tok, err := jwt.NewBuilder().
		Issuer(tokenIssuer).
		Subject(user.ID.String()).
		IssuedAt(now).
		Expiration(expires).
		Claim("email", user.Email).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build access token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, db.secret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	refresh := hex.EncodeToString(raw)

	_, err = db.ExecContext(ctx,
		db.Rebind(`INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES (?, ?, ?)`),
		hashToken(refresh), user.ID.String(), formatTime(now.Add(db.refreshTTL)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &models.Session{
		AccessToken:  string(signed),
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    expires.Truncate(time.Second),
		User:         user,
	}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
