// Package idempotency makes mutating requests safe to retry.
//
// A request carries a client-chosen key. The first execution stores its
// response under (organization, user, route, key) together with a hash of
// the request. A retry with the same hash inside the TTL replays the stored
// response; a retry with a different hash is a conflict. Lookups run inside
// the caller's transaction, after the caller has taken its row lock, so a
// racing duplicate waits and then replays.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/types"
)

// DefaultTTL is how long a stored response can be replayed.
const DefaultTTL = 24 * time.Hour

// MaxKeyLength bounds client-supplied keys.
const MaxKeyLength = 255

// domain separates request hashes from any other sha256 use.
const domain = "reckon-idempotency-v1"

// Key identifies a stored response.
type Key struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	Route          string `json:"route"`
	Key            string `json:"key"`
}

func (k Key) String() string {
	return k.OrganizationID + "/" + k.UserID + "/" + k.Route + "/" + k.Key
}

// Record is a stored response.
type Record struct {
	ID             id.IdempotencyID `json:"id"`
	OrganizationID string           `json:"organization_id"`
	UserID         string           `json:"user_id"`
	Route          string           `json:"route"`
	Key            string           `json:"key"`
	RequestHash    string           `json:"request_hash"`
	Response       json.RawMessage  `json:"response"`
	CreatedAt      time.Time        `json:"created_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
}

// RecordKey returns the lookup key of r.
func (r *Record) RecordKey() Key {
	return Key{OrganizationID: r.OrganizationID, UserID: r.UserID, Route: r.Route, Key: r.Key}
}

// Expired reports whether r can no longer be replayed at now.
func (r *Record) Expired(now time.Time) bool { return !now.Before(r.ExpiresAt) }

// TxStore is the transactional view the guard needs.
type TxStore interface {
	// GetIdempotencyRecord returns the record for k or a NotFoundError.
	GetIdempotencyRecord(ctx context.Context, k Key) (*Record, error)
	// PutIdempotencyRecord inserts r, replacing any expired record with the
	// same key.
	PutIdempotencyRecord(ctx context.Context, r *Record) error
}

// Request describes one idempotent call.
type Request struct {
	OrganizationID string
	UserID         string
	Route          string
	Key            string
	Payload        any
}

func (r Request) key() Key {
	return Key{OrganizationID: r.OrganizationID, UserID: r.UserID, Route: r.Route, Key: r.Key}
}

// Guard executes requests at most once per key.
type Guard struct {
	ttl time.Duration
	now func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithTTL sets the replay window.
func WithTTL(ttl time.Duration) Option {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGuard creates a Guard.
func NewGuard(opts ...Option) *Guard {
	g := &Guard{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TTL returns the replay window.
func (g *Guard) TTL() time.Duration { return g.ttl }

// ValidateKey checks a client-supplied key. The empty key is valid and
// disables idempotency for the call.
func ValidateKey(key string) error {
	if len(key) > MaxKeyLength {
		return types.Invalid("idempotency_key", fmt.Sprintf("must be at most %d characters", MaxKeyLength))
	}
	if key != strings.TrimSpace(key) {
		return types.Invalid("idempotency_key", "must not have leading or trailing whitespace")
	}
	return nil
}

// HashRequest returns the hex sha256 of the route, the identity and the
// canonical JSON of payload. Object keys are sorted, so two payloads that
// differ only in key order hash the same.
func HashRequest(req Request) (string, error) {
	canonical, err := canonicalJSON(req.Payload)
	if err != nil {
		return "", fmt.Errorf("idempotency: hash request: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte("|route:"))
	h.Write([]byte(req.Route))
	h.Write([]byte("|org:"))
	h.Write([]byte(req.OrganizationID))
	h.Write([]byte("|user:"))
	h.Write([]byte(req.UserID))
	h.Write([]byte("|payload:"))
	h.Write(canonical)

	return hex.EncodeToString(h.Sum(nil)), nil
}

func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// KeyPrefix returns a log-safe prefix of a client key.
func KeyPrefix(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}

// Execute runs fn at most once for req.Key within the guard's TTL.
//
// With an empty key fn always runs. Otherwise the stored record decides:
// an unexpired record with the same request hash is decoded and returned
// with replayed = true; an unexpired record with a different hash is a
// ConflictError wrapping types.ErrIdempotencyMismatch; an expired or absent
// record runs fn and stores its result. Errors from fn are returned
// unchanged and nothing is stored, so the caller's transaction rolls back.
func Execute[T any](ctx context.Context, g *Guard, tx TxStore, req Request, fn func() (T, error)) (result T, replayed bool, err error) {
	if req.Key == "" {
		result, err = fn()
		return result, false, err
	}
	if err := ValidateKey(req.Key); err != nil {
		return result, false, err
	}

	hash, err := HashRequest(req)
	if err != nil {
		return result, false, err
	}

	now := g.now().UTC()
	existing, err := tx.GetIdempotencyRecord(ctx, req.key())
	switch {
	case err == nil && !existing.Expired(now):
		if existing.RequestHash != hash {
			return result, false, &types.ConflictError{
				Resource: "idempotency key",
				Reason:   types.ErrIdempotencyMismatch.Error(),
				Cause:    types.ErrIdempotencyMismatch,
			}
		}
		if err := json.Unmarshal(existing.Response, &result); err != nil {
			return result, false, fmt.Errorf("idempotency: decode stored response: %w", err)
		}
		return result, true, nil
	case err != nil && !errors.Is(err, types.ErrNotFound):
		return result, false, fmt.Errorf("idempotency: lookup: %w", err)
	}

	result, err = fn()
	if err != nil {
		return result, false, err
	}

	response, err := json.Marshal(result)
	if err != nil {
		return result, false, fmt.Errorf("idempotency: encode response: %w", err)
	}

	rec := &Record{
		ID:             id.NewIdempotencyID(),
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		Route:          req.Route,
		Key:            req.Key,
		RequestHash:    hash,
		Response:       response,
		CreatedAt:      now,
		ExpiresAt:      now.Add(g.ttl),
	}
	if err := tx.PutIdempotencyRecord(ctx, rec); err != nil {
		return result, false, fmt.Errorf("idempotency: store response: %w", err)
	}
	return result, false, nil
}
