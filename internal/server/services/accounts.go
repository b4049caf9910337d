// Package services contains server-side business logic: server accounts
// with their access tokens, and the PostgreSQL-backed record store that
// serves vault data to signed-in users.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/keyvault/internal/common"
	"github.com/dmitrijs2005/keyvault/internal/server/auth"
	"github.com/dmitrijs2005/keyvault/internal/server/config"
	"github.com/dmitrijs2005/keyvault/internal/server/models"
	"github.com/dmitrijs2005/keyvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const maxUsernameLength = 64

// ErrInvalidAccount is returned by SignUp for an unusable username or password.
var ErrInvalidAccount = errors.New("invalid username or password")

// Token is an issued access token and the account it belongs to.
type Token struct {
	UserID      string
	AccessToken string
	ExpiresAt   time.Time
}

// AccountService registers server accounts and signs them in.
type AccountService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	hashParams                  auth.PasswordParams

	dummyOnce sync.Once
	dummyHash string
}

// NewAccountService constructs an AccountService using repositories and server config.
func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *AccountService {
	return &AccountService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		hashParams:                  auth.DefaultPasswordParams,
	}
}

// SignUp creates an account. A taken username gives common.ErrAlreadyExists.
func (s *AccountService) SignUp(ctx context.Context, username, password string) (*models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength || password == "" {
		return nil, ErrInvalidAccount
	}

	account := &models.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: auth.HashPassword(password, s.hashParams),
	}

	a, err := s.repomanager.Accounts(s.db).Create(ctx, account)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating account: %w", err)
	}
	return a, nil
}

// SignIn checks the credentials and issues an access token. Unknown users
// and wrong passwords both give common.ErrUnauthorized after the same
// amount of hashing work.
func (s *AccountService) SignIn(ctx context.Context, username, password string) (*Token, error) {
	account, err := s.repomanager.Accounts(s.db).GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			_, _ = auth.CheckPassword(password, s.dummy())
			return nil, common.ErrUnauthorized
		}
		return nil, common.ErrInternal
	}

	ok, err := auth.CheckPassword(password, account.PasswordHash)
	if err != nil {
		return nil, common.ErrInternal
	}
	if !ok {
		return nil, common.ErrUnauthorized
	}

	token, expiresAt, err := auth.GenerateToken(account.ID, account.Username, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrInternal
	}
	return &Token{UserID: account.ID, AccessToken: token, ExpiresAt: expiresAt}, nil
}

func (s *AccountService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash = auth.HashPassword(string(common.GenerateRandByteArray(16)), s.hashParams)
	})
	return s.dummyHash
}
