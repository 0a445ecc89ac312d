package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/keyring"
	"github.com/benvon/onetask/internal/models"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	keyringService = "onetask"
	sessionKey     = "session"
)

// StoredTokens is what survives a restart.
type StoredTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// TokenStore persists the signed-in session between runs.
type TokenStore interface {
	// Load returns nil, nil when nothing is stored.
	Load() (*StoredTokens, error)
	Save(tokens StoredTokens) error
	Clear() error
}

// KeyringStore keeps tokens in an OS keyring.
type KeyringStore struct {
	ring keyring.Keyring
}

// NewKeyringStore wraps ring.
func NewKeyringStore(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

// OpenKeyring opens the platform keyring, falling back to an encrypted file
// under fileDir.
func OpenKeyring(fileDir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("onetask-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	return ring, nil
}

func (s *KeyringStore) Load() (*StoredTokens, error) {
	item, err := s.ring.Get(sessionKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stored session: %w", err)
	}
	var t StoredTokens
	if err := json.Unmarshal(item.Data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode stored session: %w", err)
	}
	return &t, nil
}

func (s *KeyringStore) Save(tokens StoredTokens) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	err = s.ring.Set(keyring.Item{
		Key:         sessionKey,
		Data:        data,
		Label:       "OneTask session",
		Description: "OneTask access and refresh tokens",
	})
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *KeyringStore) Clear() error {
	err := s.ring.Remove(sessionKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("failed to clear stored session: %w", err)
	}
	return nil
}

// sessionFromTokens rebuilds a session from stored tokens. The access token
// is not verified here; the backend rejects it if it was tampered with.
func sessionFromTokens(t StoredTokens) (*models.Session, error) {
	tok, err := jwt.Parse([]byte(t.AccessToken), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored access token: %w", err)
	}

	id, err := uuid.Parse(tok.Subject())
	if err != nil {
		return nil, fmt.Errorf("stored access token has invalid subject: %w", err)
	}

	var email string
	if v, ok := tok.Get("email"); ok {
		email, _ = v.(string)
	}

	tokenType := t.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return &models.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    tok.Expiration(),
		User:         models.User{ID: id, Email: email},
	}, nil
}
