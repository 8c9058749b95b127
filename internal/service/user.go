package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
	"github.com/josh-kwaku/wallet-ledger/internal/logging"
	"github.com/josh-kwaku/wallet-ledger/internal/repository"
)

const MinPasswordLength = 8

type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type Session struct {
	User      *domain.User
	Token     string
	ExpiresIn time.Duration
}

// Recipient is what a sender may see about another user before a transfer.
type Recipient struct {
	FirstName string
	Email     string
	Wallets   []RecipientWallet
}

type RecipientWallet struct {
	ID       uuid.UUID
	Currency domain.Currency
	Symbol   string
}

type UserDetails struct {
	User        *domain.User
	Wallets     []domain.Wallet
	WalletCount int
	// Balances sums wallet balances per currency; currencies are never mixed.
	Balances map[domain.Currency]decimal.Decimal
}

type UserService struct {
	users        userRepository
	wallets      walletRepository
	tokens       tokenIssuer
	db           *sql.DB
	defaultLimit decimal.Decimal
	tokenTTL     time.Duration
	cost         int
}

func NewUserService(
	users userRepository,
	wallets walletRepository,
	tokens tokenIssuer,
	db *sql.DB,
	defaultLimit decimal.Decimal,
	tokenTTL time.Duration,
) *UserService {
	if !defaultLimit.IsPositive() {
		defaultLimit = domain.DefaultDailyLimit
	}
	return &UserService{
		users:        users,
		wallets:      wallets,
		tokens:       tokens,
		db:           db,
		defaultLimit: defaultLimit,
		tokenTTL:     tokenTTL,
		cost:         bcrypt.DefaultCost,
	}
}

// Register creates the user and their USD wallet in one transaction.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*domain.User, *domain.Wallet, error) {
	log := logging.FromContext(ctx)

	if len(req.Password) < MinPasswordLength {
		return nil, nil, fmt.Errorf("Register: password shorter than %d: %w", MinPasswordLength, domain.ErrInvalidRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, nil, fmt.Errorf("Register: hash password: %w", err)
	}

	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: string(hash),
		Role:         domain.UserRoleUser,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
	}
	w := newWallet(u.ID, domain.CurrencyUSD, s.defaultLimit, now)

	err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.users.Create(ctx, tx, u); err != nil {
			return err
		}
		return s.wallets.Create(ctx, tx, w)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("Register: %w", err)
	}

	log.Info("user registered", "user_id", u.ID, "wallet_id", w.ID)
	return u, w, nil
}

// Authenticate checks the password and issues a token. Unknown emails, wrong
// passwords and suspended users all fail with ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("Authenticate: %w", domain.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("Authenticate: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("Authenticate: %w", domain.ErrInvalidCredentials)
	}
	if u.Status != domain.UserStatusActive {
		return nil, fmt.Errorf("Authenticate: user %s: %w", u.Status, domain.ErrInvalidCredentials)
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("Authenticate: %w", err)
	}
	return &Session{User: u, Token: token, ExpiresIn: s.tokenTTL}, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetUser: %w", err)
	}
	return u, nil
}

// EnsureAdmin creates the admin account on first start. An existing user
// with the same email is left untouched.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	log := logging.FromContext(ctx)

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("EnsureAdmin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("EnsureAdmin: hash password: %w", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(email),
		FirstName:    "System",
		LastName:     "Admin",
		PasswordHash: string(hash),
		Role:         domain.UserRoleAdmin,
		Status:       domain.UserStatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, s.db, u); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil
		}
		return fmt.Errorf("EnsureAdmin: %w", err)
	}

	log.Info("admin user seeded", "user_id", u.ID, "email", u.Email)
	return nil
}

// LookupRecipient resolves a transfer recipient by email. Only active wallets
// are listed and the caller cannot look themselves up.
func (s *UserService) LookupRecipient(ctx context.Context, callerID uuid.UUID, email string) (*Recipient, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("LookupRecipient: empty email: %w", domain.ErrInvalidRequest)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("LookupRecipient: %w", err)
	}
	if u.ID == callerID {
		return nil, fmt.Errorf("LookupRecipient: own email: %w", domain.ErrInvalidRequest)
	}
	if u.Status != domain.UserStatusActive {
		return nil, fmt.Errorf("LookupRecipient: user %s: %w", u.Status, domain.ErrNotFound)
	}

	wallets, err := s.wallets.GetByOwnerID(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("LookupRecipient: %w", err)
	}

	out := &Recipient{FirstName: u.FirstName, Email: u.Email, Wallets: []RecipientWallet{}}
	for _, w := range wallets {
		if !w.Active {
			continue
		}
		out.Wallets = append(out.Wallets, RecipientWallet{ID: w.ID, Currency: w.Currency, Symbol: w.Currency.Symbol()})
	}
	return out, nil
}

func (s *UserService) UserDetails(ctx context.Context, id uuid.UUID) (*UserDetails, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("UserDetails: %w", err)
	}
	wallets, err := s.wallets.GetByOwnerID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("UserDetails: %w", err)
	}

	balances := make(map[domain.Currency]decimal.Decimal, len(wallets))
	for _, w := range wallets {
		balances[w.Currency] = balances[w.Currency].Add(w.Balance)
	}
	return &UserDetails{User: u, Wallets: wallets, WalletCount: len(wallets), Balances: balances}, nil
}

func (s *UserService) UpdateRole(ctx context.Context, id uuid.UUID, role string) (*domain.User, error) {
	r, err := domain.ParseUserRole(role)
	if err != nil {
		return nil, fmt.Errorf("UpdateRole: %w", err)
	}
	u, err := s.users.UpdateRole(ctx, id, r)
	if err != nil {
		return nil, fmt.Errorf("UpdateRole: %w", err)
	}

	logging.FromContext(ctx).Info("user role updated", "user_id", u.ID, "role", u.Role)
	return u, nil
}
