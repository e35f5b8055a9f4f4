package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/storefront/internal/apperr"
)

// ErrUnauthorized is returned for missing, unknown or revoked keys.
var ErrUnauthorized = apperr.New(apperr.KindUnauthorized, "Not authorized, invalid API key")

// ErrKeyNotFound is returned by KeyRepository.FindByHash when no active key
// matches.
var ErrKeyNotFound = errors.New("api key not found")

// KeyPrefix marks raw keys issued by this service.
const KeyPrefix = "sk_"

// KeyRecord is a stored API key. Only the HMAC of the raw key is kept.
type KeyRecord struct {
	ID        string
	KeyHash   string
	Name      string
	Kind      Kind
	SubjectID string
	Email     string
	Scopes    []string
	CreatedAt time.Time
}

// Principal converts the record into the caller identity.
func (r *KeyRecord) Principal() *Principal {
	return &Principal{
		ID:          r.ID,
		Kind:        r.Kind,
		SubjectID:   r.SubjectID,
		Email:       r.Email,
		Name:        r.Name,
		Permissions: r.Scopes,
	}
}

// KeyRepository stores API keys by their HMAC hash.
type KeyRepository interface {
	FindByHash(ctx context.Context, hash string) (*KeyRecord, error)
	Create(ctx context.Context, r *KeyRecord) error
}

// Hasher computes the peppered HMAC-SHA256 of raw keys.
type Hasher struct {
	pepper []byte
}

// NewHasher creates a Hasher.
func NewHasher(pepper []byte) Hasher {
	return Hasher{pepper: pepper}
}

// Sum returns the raw HMAC of key.
func (h Hasher) Sum(key string) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(key))
	return mac.Sum(nil)
}

// Hex returns the hex-encoded HMAC of key, as stored in the database.
func (h Hasher) Hex(key string) string {
	return hex.EncodeToString(h.Sum(key))
}

// Keys authenticates and issues API keys.
type Keys struct {
	repo   KeyRepository
	hasher Hasher
	now    func() time.Time
}

// NewKeys creates a Keys service.
func NewKeys(repo KeyRepository, hasher Hasher) *Keys {
	return &Keys{repo: repo, hasher: hasher, now: time.Now}
}

// Authenticate resolves a raw key to its principal. The stored hash is
// compared in constant time in case the repository returned a wrong row.
func (k *Keys) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	if raw == "" {
		return nil, ErrUnauthorized
	}
	sum := k.hasher.Sum(raw)

	rec, err := k.repo.FindByHash(ctx, hex.EncodeToString(sum))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}

	stored, err := hex.DecodeString(rec.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(sum, stored) != 1 {
		return nil, ErrUnauthorized
	}
	return rec.Principal(), nil
}

// IssueRequest describes the owner of a new key.
type IssueRequest struct {
	Kind      Kind
	SubjectID string
	Email     string
	Name      string
	Scopes    []string
}

// Issue creates a key and returns the raw value. The raw value is never
// stored and cannot be recovered later.
func (k *Keys) Issue(ctx context.Context, req IssueRequest) (string, *KeyRecord, error) {
	raw, err := newRawKey()
	if err != nil {
		return "", nil, err
	}
	rec := &KeyRecord{
		ID:        uuid.New().String(),
		KeyHash:   k.hasher.Hex(raw),
		Name:      req.Name,
		Kind:      req.Kind,
		SubjectID: req.SubjectID,
		Email:     req.Email,
		Scopes:    req.Scopes,
		CreatedAt: k.now(),
	}
	if err := k.repo.Create(ctx, rec); err != nil {
		return "", nil, errors.Wrap(err, "create api key")
	}
	return raw, rec, nil
}

func newRawKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "read random")
	}
	return KeyPrefix + hex.EncodeToString(b), nil
}
