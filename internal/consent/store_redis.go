package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	grantKeyPrefix    = "consent:"
	revokedKeySuffix  = ":revoked"
	patientKeyFormat  = "patient:%s:consents"
	hospitalKeyFormat = "hospital:%s:consents"
)

// RedisStore keeps grant records in Redis with expiry-aligned TTLs, plus a
// secondary revocation flag key and per-patient/per-hospital index sets.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
	now     func() time.Time
}

func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RedisStore{
		client:  client,
		timeout: timeout,
		now:     time.Now,
	}
}

func grantKey(id string) string   { return grantKeyPrefix + id }
func revokedKey(id string) string { return grantKeyPrefix + id + revokedKeySuffix }

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *RedisStore) Put(ctx context.Context, grant *Grant) error {
	ttl := grant.TTL(s.now())
	if ttl <= 0 {
		return fmt.Errorf("grant %s already expired", grant.ID)
	}

	payload, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("marshal grant: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, grantKey(grant.ID), payload, ttl)
	pipe.SAdd(ctx, fmt.Sprintf(patientKeyFormat, grant.PatientID), grant.ID)
	if grant.RecipientHospitalID != "" {
		pipe.SAdd(ctx, fmt.Sprintf(hospitalKeyFormat, grant.RecipientHospitalID), grant.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store grant %s: %w", grant.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Grant, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	raw, err := s.client.Get(ctx, grantKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrConsentNotFound
	}
	if err != nil {
		// One bounded retry for transient faults; a second failure is a
		// uniform not-found so an outage can never turn into an allow.
		time.Sleep(50 * time.Millisecond)
		raw, err = s.client.Get(ctx, grantKey(id)).Bytes()
		if err != nil {
			return nil, ErrConsentNotFound
		}
	}

	var grant Grant
	if err := json.Unmarshal(raw, &grant); err != nil {
		return nil, ErrConsentNotFound
	}
	return &grant, nil
}

func (s *RedisStore) Revoke(ctx context.Context, id string) (bool, error) {
	grant, err := s.Get(ctx, id)
	if err != nil {
		// Already reclaimed or never existed: no valid access remains,
		// so revocation is a no-op success.
		if errors.Is(err, ErrConsentNotFound) {
			return false, nil
		}
		return false, err
	}

	grant.Revoked = true
	ttl := grant.TTL(s.now())
	if ttl <= 0 {
		return false, nil
	}

	payload, err := json.Marshal(grant)
	if err != nil {
		return false, fmt.Errorf("marshal grant: %w", err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// The rewrite keeps the remaining TTL: revocation must never extend a
	// grant's lifetime in the store.
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, revokedKey(id), "1", ttl)
	pipe.Set(ctx, grantKey(id), payload, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("revoke grant %s: %w", id, err)
	}
	return true, nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, revokedKey(id)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) GrantIDsByPatient(ctx context.Context, patientID string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ids, err := s.client.SMembers(ctx, fmt.Sprintf(patientKeyFormat, patientID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list grants for patient: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
