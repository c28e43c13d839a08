// ABOUTME: Verifies enrollment keys and registers new agents, minting their credentials.
// ABOUTME: Key secrets are stored as bcrypt hashes; the cleartext is returned once at creation.

package enroll

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/droverhq/drover/internal/auth"
	"github.com/droverhq/drover/internal/store"
	"github.com/droverhq/drover/internal/wire"
)

// AgentTokenTTL is how long a freshly minted agent credential stays valid.
// Agents are expected to re-enroll (or be re-issued a token) before expiry.
const AgentTokenTTL = 90 * 24 * time.Hour

// secretBytes is the entropy, in bytes, of a generated enrollment secret.
const secretBytes = 32

// dummyHash keeps bcrypt timing constant when the key name is unknown.
// This prevents timing attacks that could enumerate valid key names.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

var (
	// ErrUnknownKey is returned when no enrollment key matches the requested
	// name, or when the secret does not match the key. The two cases are
	// deliberately indistinguishable to the caller.
	ErrUnknownKey = errors.New("unknown enrollment key or secret")

	// ErrKeyRevoked is returned when the key exists but has been revoked.
	ErrKeyRevoked = errors.New("enrollment key revoked")
)

// Service verifies enrollment keys and registers agents.
type Service struct {
	store  store.Store
	tokens *auth.JWTVerifier
	logger *slog.Logger
}

// New creates an enrollment service. tokens mints the agent credentials
// returned from Enroll.
func New(st store.Store, tokens *auth.JWTVerifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		tokens: tokens,
		logger: logger.With("component", "enroll"),
	}
}

// CreatedKey is the result of CreateKey. Secret is the cleartext, surfaced
// exactly once; only the bcrypt hash is persisted.
type CreatedKey struct {
	ID     string
	Name   string
	Secret string
}

// CreateKey mints an enrollment key under the given name. When secret is
// empty a random one is generated. The cleartext secret is returned and
// never stored.
func (s *Service) CreateKey(ctx context.Context, name, secret string) (*CreatedKey, error) {
	if name == "" {
		return nil, fmt.Errorf("enrollment key name is required")
	}
	if secret == "" {
		var err error
		secret, err = generateSecret(secretBytes)
		if err != nil {
			return nil, fmt.Errorf("generating enrollment secret: %w", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing enrollment secret: %w", err)
	}

	key := &store.EnrollmentKey{
		ID:         uuid.NewString(),
		Name:       name,
		SecretHash: string(hash),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateEnrollmentKey(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("enrollment key created", "key_id", key.ID, "name", name)
	return &CreatedKey{ID: key.ID, Name: name, Secret: secret}, nil
}

// Enroll verifies the key and secret, registers the agent with the facts it
// reported, and mints its credential. Unknown names and wrong secrets both
// return ErrUnknownKey; a revoked key returns ErrKeyRevoked.
func (s *Service) Enroll(ctx context.Context, req wire.EnrollRequest) (*wire.EnrollResponse, error) {
	key, err := s.store.GetEnrollmentKeyByName(ctx, req.EnrollmentKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn the same bcrypt time as a real comparison so unknown
			// key names are not distinguishable by latency.
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(req.EnrollmentSecret))
			return nil, ErrUnknownKey
		}
		return nil, fmt.Errorf("looking up enrollment key: %w", err)
	}

	if key.Revoked() {
		return nil, ErrKeyRevoked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(req.EnrollmentSecret)); err != nil {
		s.logger.Warn("enrollment secret mismatch", "key", key.Name, "hostname", req.Hostname)
		return nil, ErrUnknownKey
	}

	agent := &store.Agent{
		ID:           uuid.NewString(),
		Hostname:     req.Hostname,
		OSType:       req.OSType,
		OSVersion:    req.OSVersion,
		Architecture: req.Architecture,
		AgentVersion: req.AgentVersion,
		Status:       store.AgentStatusApproved,
		EnrolledAt:   time.Now().UTC(),
	}
	if err := s.store.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("registering agent: %w", err)
	}

	token, err := s.tokens.Generate(agent.ID, auth.RoleAgent, AgentTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("minting agent token: %w", err)
	}

	s.logger.Info("=== AGENT ENROLLED ===",
		"agent_id", agent.ID,
		"hostname", agent.Hostname,
		"os", agent.OSType,
		"key", key.Name)

	return &wire.EnrollResponse{AgentID: agent.ID, AuthToken: token}, nil
}

// RevokeKey revokes an enrollment key by id. Revoking an already revoked
// key is a no-op. Agents enrolled under the key keep their credentials.
func (s *Service) RevokeKey(ctx context.Context, id string) error {
	if err := s.store.RevokeEnrollmentKey(ctx, id); err != nil {
		return err
	}
	s.logger.Info("enrollment key revoked", "key_id", id)
	return nil
}

// ListKeys returns all enrollment keys, revoked ones included. Secret
// hashes ride along; callers rendering keys must not expose them.
func (s *Service) ListKeys(ctx context.Context) ([]*store.EnrollmentKey, error) {
	return s.store.ListEnrollmentKeys(ctx)
}

func generateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
