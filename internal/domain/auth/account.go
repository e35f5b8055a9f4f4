package auth

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/storefront/internal/apperr"
)

var (
	// ErrEmailTaken is returned by CustomerRepository.Create on a duplicate
	// email.
	ErrEmailTaken = apperr.New(apperr.KindStateConflict, "User already exists with this email")
	// ErrCustomerNotFound is returned by CustomerRepository.FindByEmail.
	ErrCustomerNotFound = apperr.NotFound("User not found")
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "Invalid email or password")
)

// Customer is a registered shopper.
type Customer struct {
	ID           string
	Email        string
	Name         string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
}

// CustomerRepository persists customers.
type CustomerRepository interface {
	Create(ctx context.Context, c *Customer) error
	FindByEmail(ctx context.Context, email string) (*Customer, error)
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Session is the result of a successful sign-in.
type Session struct {
	APIKey   string
	Customer *Customer
}

// Accounts creates customers and signs them in with fresh API keys.
type Accounts struct {
	customers CustomerRepository
	keys      *Keys
	now       func() time.Time
}

// NewAccounts creates an Accounts service.
func NewAccounts(customers CustomerRepository, keys *Keys) *Accounts {
	return &Accounts{customers: customers, keys: keys, now: time.Now}
}

// Exists reports whether a customer with email is registered.
func (a *Accounts) Exists(ctx context.Context, email string) (bool, error) {
	_, err := a.customers.FindByEmail(ctx, NormalizeEmail(email))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrCustomerNotFound):
		return false, nil
	default:
		return false, errors.Wrap(err, "find customer")
	}
}

// Register stores a customer whose password is already bcrypt-hashed and
// issues their first key.
func (a *Accounts) Register(ctx context.Context, c Customer) (*Session, error) {
	c.ID = uuid.New().String()
	c.Email = NormalizeEmail(c.Email)
	c.Name = strings.TrimSpace(c.Name)
	c.CreatedAt = a.now()
	if err := a.customers.Create(ctx, &c); err != nil {
		return nil, err
	}
	return a.session(ctx, &c)
}

// Login checks the password and issues a new key.
func (a *Accounts) Login(ctx context.Context, email, password string) (*Session, error) {
	c, err := a.customers.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "find customer")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return a.session(ctx, c)
}

func (a *Accounts) session(ctx context.Context, c *Customer) (*Session, error) {
	raw, _, err := a.keys.Issue(ctx, IssueRequest{
		Kind:      KindCustomer,
		SubjectID: c.ID,
		Email:     c.Email,
		Name:      c.Name,
	})
	if err != nil {
		return nil, err
	}
	return &Session{APIKey: raw, Customer: c}, nil
}
