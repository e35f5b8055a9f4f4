// Package registration implements email-verified customer sign-up. A
// registration stays pending in Redis until the emailed code is confirmed.
package registration

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
)

const (
	// CodeTTL is how long a pending registration can be verified.
	CodeTTL = 10 * time.Minute
	// MaxAttempts is the number of wrong codes after which the pending
	// registration is discarded.
	MaxAttempts = 3
	codeDigits  = 6
	minPassword = 6
)

var (
	ErrNoPending       = apperr.Validation("No pending registration found")
	ErrInvalidCode     = apperr.Validation("Invalid or expired OTP")
	ErrTooManyAttempts = apperr.Validation("Too many invalid attempts, please register again")
	ErrAlreadyExists   = apperr.Validation("User already exists")
	ErrSendFailed      = apperr.New(apperr.KindUnavailable, "Could not send verification code")
)

// Pending is an unverified registration.
type Pending struct {
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Code         string
	Attempts     int
}

// Store holds pending registrations keyed by normalized email.
type Store interface {
	Put(ctx context.Context, p Pending, ttl time.Duration) error
	Get(ctx context.Context, email string) (*Pending, error)
	IncrAttempts(ctx context.Context, email string) (int, error)
	Delete(ctx context.Context, email string) error
}

// CodeSender delivers the verification code.
type CodeSender interface {
	RegistrationCode(ctx context.Context, email, name, code string) error
}

// Accounts creates verified customers.
type Accounts interface {
	Exists(ctx context.Context, email string) (bool, error)
	Register(ctx context.Context, c auth.Customer) (*auth.Session, error)
}

// Service runs the register and verify steps.
type Service struct {
	store    Store
	accounts Accounts
	sender   CodeSender
	lg       *zap.Logger
	newCode  func() (string, error)
	cost     int
}

// NewService creates a registration Service.
func NewService(store Store, accounts Accounts, sender CodeSender, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		store:    store,
		accounts: accounts,
		sender:   sender,
		lg:       lg,
		newCode:  newCode,
		cost:     bcrypt.DefaultCost,
	}
}

// StartRequest is the sign-up form.
type StartRequest struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

func normalizeEmail(email string) (string, error) {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return "", apperr.Validation("Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Validation("Valid email is required")
	}
	return email, nil
}

// Start validates the form, stores a pending registration and sends a code.
// Registering again for the same email replaces the previous code.
func (s *Service) Start(ctx context.Context, req StartRequest) error {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return apperr.Validation("Name is required")
	}
	if len(req.Password) < minPassword {
		return apperr.Validation("Password must be at least %d characters", minPassword)
	}

	exists, err := s.accounts.Exists(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	code, err := s.newCode()
	if err != nil {
		return err
	}
	p := Pending{
		Name:         name,
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: string(hash),
		Code:         code,
	}
	if err := s.store.Put(ctx, p, CodeTTL); err != nil {
		return err
	}

	if err := s.sender.RegistrationCode(ctx, email, name, code); err != nil {
		s.lg.Warn("Verification code delivery failed", zap.String("email", email), zap.Error(err))
		if err := s.store.Delete(ctx, email); err != nil {
			s.lg.Warn("Drop pending registration failed", zap.String("email", email), zap.Error(err))
		}
		return ErrSendFailed
	}
	return nil
}

// Verify checks the code and creates the customer. Each wrong code counts
// as an attempt; after MaxAttempts the registration is discarded.
func (s *Service) Verify(ctx context.Context, email, code string) (*auth.Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if len(code) != codeDigits {
		return nil, ErrInvalidCode
	}
	p, err := s.store.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	if p.Attempts >= MaxAttempts {
		return nil, s.discard(ctx, email)
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(p.Code)) != 1 {
		n, err := s.store.IncrAttempts(ctx, email)
		if err != nil {
			return nil, err
		}
		if n >= MaxAttempts {
			return nil, s.discard(ctx, email)
		}
		return nil, ErrInvalidCode
	}

	sess, err := s.accounts.Register(ctx, auth.Customer{
		Email:        p.Email,
		Name:         p.Name,
		Phone:        p.Phone,
		PasswordHash: p.PasswordHash,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, email); err != nil {
		s.lg.Warn("Drop pending registration failed", zap.String("email", email), zap.Error(err))
	}
	s.lg.Info("Customer registered", zap.String("customer_id", sess.Customer.ID))
	return sess, nil
}

func (s *Service) discard(ctx context.Context, email string) error {
	if err := s.store.Delete(ctx, email); err != nil {
		return err
	}
	return ErrTooManyAttempts
}

func newCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", errors.Wrap(err, "generate code")
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
