package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/wgelabs/lms-backend/internal/logger"
)

// Route classes with distinct budgets. Event ingestion and quiz submission
// are policed separately from everything else.
const (
	RouteClassEvents  = "events"
	RouteClassQuiz    = "quiz_submit"
	RouteClassDefault = "default"
)

type RateLimits struct {
	EventsPerMin  int
	QuizPerMin    int
	DefaultPerMin int
}

type RateResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimitService is a hard admission gate: it rejects, it never queues.
// Counters live in redis sorted sets so the sliding window is shared across
// serving instances.
type RateLimitService interface {
	Allow(ctx context.Context, identity, routeClass string) (*RateResult, error)
}

// Trim, count and record run server-side in one script so two requests racing
// the check cannot both observe the same count and slip past the budget.
// KEYS[1] window zset; ARGV: window start, limit, now, member, ttl millis.
// Returns {allowed, count after the call, oldest score when rejected}.
var slidingWindowScript = goredis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[2]) then
	local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	local score = ''
	if oldest[2] then
		score = oldest[2]
	end
	return {0, count, score}
end
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return {1, count + 1, ''}
`)

type rateLimitService struct {
	log    *logger.Logger
	rdb    *goredis.Client
	limits RateLimits
	window time.Duration
}

func NewRateLimitService(rdb *goredis.Client, baseLog *logger.Logger, limits RateLimits) RateLimitService {
	if limits.EventsPerMin <= 0 {
		limits.EventsPerMin = 60
	}
	if limits.QuizPerMin <= 0 {
		limits.QuizPerMin = 20
	}
	if limits.DefaultPerMin <= 0 {
		limits.DefaultPerMin = 100
	}
	return &rateLimitService{
		log:    baseLog.With("service", "RateLimitService"),
		rdb:    rdb,
		limits: limits,
		window: time.Minute,
	}
}

func (s *rateLimitService) limitFor(routeClass string) int {
	switch routeClass {
	case RouteClassEvents:
		return s.limits.EventsPerMin
	case RouteClassQuiz:
		return s.limits.QuizPerMin
	default:
		return s.limits.DefaultPerMin
	}
}

func (s *rateLimitService) Allow(ctx context.Context, identity, routeClass string) (*RateResult, error) {
	limit := s.limitFor(routeClass)
	key := fmt.Sprintf("rl:%s:%s", routeClass, identity)
	now := time.Now()
	windowStart := now.Add(-s.window)

	res, err := slidingWindowScript.Run(ctx, s.rdb, []string{key},
		windowStart.UnixNano(),
		limit,
		now.UnixNano(),
		uuid.New().String(),
		s.window.Milliseconds(),
	).Slice()
	if err != nil || len(res) < 3 {
		// Admission control fails open: a degraded limiter must not take the
		// ingestion path down with it.
		s.log.Warn("rate limit check failed, allowing", "error", err)
		return &RateResult{Allowed: true, Limit: limit, Remaining: limit}, nil
	}

	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)
	oldestScore, _ := res[2].(string)

	if allowed != 1 {
		retryAfter := s.window
		if oldestScore != "" {
			if score, parseErr := strconv.ParseFloat(oldestScore, 64); parseErr == nil {
				oldestAt := time.Unix(0, int64(score))
				retryAfter = oldestAt.Add(s.window).Sub(now)
				if retryAfter < 0 {
					retryAfter = 0
				}
			}
		}
		return &RateResult{Allowed: false, Limit: limit, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &RateResult{Allowed: true, Limit: limit, Remaining: remaining}, nil
}
