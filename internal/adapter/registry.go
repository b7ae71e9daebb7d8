package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maheshrc27/postlater/internal/models"
	"github.com/maheshrc27/postlater/pkg/utils"
	"golang.org/x/oauth2"
)

var ErrUnsupportedAccountType = errors.New("unsupported account type")

// Factory builds an adapter for an account. token is nil when the account has
// never been linked.
type Factory func(account *models.Account, token *oauth2.Token) (Adapter, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[models.AccountType]Factory
	secretKey []byte
}

func NewRegistry(secretKey string) *Registry {
	return &Registry{
		factories: make(map[models.AccountType]Factory),
		secretKey: []byte(secretKey),
	}
}

func (r *Registry) Register(accountType models.AccountType, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[accountType] = f
}

func (r *Registry) Supports(accountType models.AccountType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[accountType]
	return ok
}

// Resolve returns the adapter for the account's type with its decrypted credential.
func (r *Registry) Resolve(account *models.Account) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[account.AccountType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAccountType, account.AccountType)
	}

	token, err := r.decodeCredential(account)
	if err != nil {
		return nil, err
	}
	return f(account, token)
}

func (r *Registry) decodeCredential(account *models.Account) (*oauth2.Token, error) {
	if account.Credential == nil || *account.Credential == "" {
		return nil, nil
	}

	raw, err := utils.Decrypt(*account.Credential, r.secretKey)
	if err != nil {
		return nil, fmt.Errorf("decrypting credential for account %d: %w", account.ID, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("decoding credential for account %d: %w", account.ID, err)
	}
	return &token, nil
}

// EncodeCredential encrypts a token for storage in Account.Credential.
func (r *Registry) EncodeCredential(token *oauth2.Token) (string, error) {
	raw, err := json.Marshal(token)
	if err != nil {
		return "", err
	}
	return utils.Encrypt(raw, r.secretKey)
}

// TokenReady reports whether a token can be used to post. Tokens with a refresh
// token stay usable after the access token expires.
func TokenReady(token *oauth2.Token) bool {
	if token == nil || token.AccessToken == "" {
		return false
	}
	return token.Valid() || token.RefreshToken != ""
}
