package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wgelabs/lms-backend/internal/logger"
)

// Admission states returned by Admit.
const (
	AdmitFresh    = "fresh"
	AdmitReplay   = "replay"
	AdmitInFlight = "in_flight"
)

type AdmitResult struct {
	State        string
	CachedStatus int
	CachedBody   []byte
}

// IdempotencyService deduplicates write requests by caller-supplied key. The
// record lives in redis so every serving instance sees the same reservation;
// the TTL only needs to span retry storms, not long-term replay protection.
type IdempotencyService interface {
	// Admit reserves the key on first sight. A reserved key whose response
	// has been stored replays it; a reservation still being processed is
	// reported as in-flight.
	Admit(ctx context.Context, actorID, key, fingerprint string) (*AdmitResult, error)
	// Store records the final response under a previously admitted key.
	Store(ctx context.Context, actorID, key string, status int, body []byte) error
	// Release drops a reservation whose processing failed, so the caller's
	// retry is not locked out for the rest of the window.
	Release(ctx context.Context, actorID, key string) error
}

type idempotencyRecord struct {
	Pending     bool            `json:"pending"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Status      int             `json:"status,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

type idempotencyService struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewIdempotencyService(rdb *goredis.Client, baseLog *logger.Logger, ttl time.Duration) IdempotencyService {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &idempotencyService{
		log: baseLog.With("service", "IdempotencyService"),
		rdb: rdb,
		ttl: ttl,
	}
}

func (s *idempotencyService) redisKey(actorID, key string) string {
	return fmt.Sprintf("idem:%s:%s", actorID, key)
}

func (s *idempotencyService) Admit(ctx context.Context, actorID, key, fingerprint string) (*AdmitResult, error) {
	rkey := s.redisKey(actorID, key)

	pending, err := json.Marshal(idempotencyRecord{Pending: true, Fingerprint: fingerprint})
	if err != nil {
		return nil, err
	}

	ok, err := s.rdb.SetNX(ctx, rkey, pending, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency reserve: %w", err)
	}
	if ok {
		return &AdmitResult{State: AdmitFresh}, nil
	}

	raw, err := s.rdb.Get(ctx, rkey).Bytes()
	if err == goredis.Nil {
		// Record expired between SETNX and GET; treat as fresh next try.
		return &AdmitResult{State: AdmitInFlight}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency read: %w", err)
	}

	var rec idempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("idempotency decode: %w", err)
	}
	if rec.Pending {
		return &AdmitResult{State: AdmitInFlight}, nil
	}

	// Keys bucket pings per second, so differing payloads under one key are
	// expected; the fingerprint mismatch is logged for observability only.
	if fingerprint != "" && rec.Fingerprint != "" && rec.Fingerprint != fingerprint {
		s.log.Debug("idempotency replay with differing fingerprint", "key", key)
	}

	return &AdmitResult{
		State:        AdmitReplay,
		CachedStatus: rec.Status,
		CachedBody:   rec.Body,
	}, nil
}

func (s *idempotencyService) Store(ctx context.Context, actorID, key string, status int, body []byte) error {
	rkey := s.redisKey(actorID, key)

	raw, err := s.rdb.Get(ctx, rkey).Bytes()
	fingerprint := ""
	if err == nil {
		var rec idempotencyRecord
		if json.Unmarshal(raw, &rec) == nil {
			fingerprint = rec.Fingerprint
		}
	}

	done, err := json.Marshal(idempotencyRecord{
		Fingerprint: fingerprint,
		Status:      status,
		Body:        json.RawMessage(body),
	})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, rkey, done, s.ttl).Err()
}

func (s *idempotencyService) Release(ctx context.Context, actorID, key string) error {
	return s.rdb.Del(ctx, s.redisKey(actorID, key)).Err()
}
