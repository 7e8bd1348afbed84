package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfreddev/aigateway/config"
	"github.com/alfreddev/aigateway/gwerror"
	"github.com/alfreddev/aigateway/kv"
)

// kvTimeout bounds every admission-controller KV round trip (§5).
const kvTimeout = 50 * time.Millisecond

// SuspicionRecorder lets the admission controller hand an IP violation to
// C6 without importing it directly; C6 owns the tick-counting and block-set
// escalation (5+ ticks → 24h block, §4.6).
type SuspicionRecorder interface {
	RecordTick(ip string)
}

// Admission is the C5 admission controller: three ordered layers, any
// denial short-circuits (§4.5).
type Admission struct {
	cfg       *config.Config
	store     *kv.Store
	suspicion SuspicionRecorder
	logger    zerolog.Logger
	sem       *Semaphore
}

func NewAdmission(cfg *config.Config, store *kv.Store, suspicion SuspicionRecorder, logger zerolog.Logger) *Admission {
	return &Admission{
		cfg:       cfg,
		store:     store,
		suspicion: suspicion,
		logger:    logger.With().Str("component", "admission").Logger(),
		sem:       NewSemaphore(),
	}
}

// Global is the §4.5 step-1 middleware: a fixed one-second window
// approximating the sliding global RPS+burst limit.
func (a *Admission) Global(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.RateLimitEnabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), kvTimeout)
		defer cancel()

		key := "admission:global:rps:" + strconv.FormatInt(time.Now().Unix(), 10)
		limit := a.cfg.GlobalRPS + a.cfg.GlobalBurst

		count, err := a.store.Incr(ctx, key, 2*time.Second)
		if err != nil {
			a.logger.Warn().Err(err).Msg("global limiter: kv unavailable, failing closed")
			WriteError(w, r, gwerror.New(gwerror.UpstreamUnavailable, "rate limit store unavailable").WithRetryAfter(1*time.Second))
			return
		}

		if int(count) > limit {
			WriteError(w, r, gwerror.New(gwerror.RateLimitedGlobal, "").WithRetryAfter(1*time.Second))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// PerIP is the §4.5 step-2 middleware: a fixed per-minute window per
// client IP. Exceeding it escalates to C6's suspicion ticker.
func (a *Admission) PerIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.RateLimitEnabled {
			next.ServeHTTP(w, r)
			return
		}

		ip := GetClientIP(r.Context())
		if ip == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), kvTimeout)
		defer cancel()

		minuteBucket := time.Now().Unix() / 60
		key := "admission:ip:" + ip + ":" + strconv.FormatInt(minuteBucket, 10)

		count, err := a.store.Incr(ctx, key, 90*time.Second)
		if err != nil {
			a.logger.Warn().Err(err).Msg("per-ip limiter: kv unavailable, failing closed")
			WriteError(w, r, gwerror.New(gwerror.UpstreamUnavailable, "rate limit store unavailable").WithRetryAfter(1*time.Second))
			return
		}

		if int(count) > a.cfg.PerIPPerMinute {
			if a.suspicion != nil {
				a.suspicion.RecordTick(ip)
			}
			WriteError(w, r, gwerror.New(gwerror.RateLimitedIP, "").WithRetryAfter(30*time.Second))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// PerPrincipal is the §4.5 step-3 stage, applied after C4 authentication:
// (a) an hourly sliding-window count against the principal's tier, and
// (b) the in-flight concurrency semaphore sized to the tier's cap. Step
// 3c, the token-budget pre-check, needs the parsed request body and is
// performed by the handler itself immediately before C3 dispatch.
func (a *Admission) PerPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := GetPrincipal(r.Context())
		if principal == nil {
			WriteError(w, r, gwerror.New(gwerror.CredentialsMissing, ""))
			return
		}

		tier, ok := a.cfg.Tiers[principal.Tier]
		if !ok {
			WriteError(w, r, gwerror.New(gwerror.InsufficientPerms, "unknown tier"))
			return
		}

		if a.cfg.RateLimitEnabled {
			ctx, cancel := context.WithTimeout(r.Context(), kvTimeout)
			allowed, err := a.checkHourlyWindow(ctx, principal.ID, tier.RequestsPerHour)
			cancel()
			if err != nil {
				a.logger.Warn().Err(err).Msg("per-principal limiter: kv unavailable, failing closed")
				WriteError(w, r, gwerror.New(gwerror.UpstreamUnavailable, "rate limit store unavailable").WithRetryAfter(1*time.Second))
				return
			}
			if !allowed {
				WriteError(w, r, gwerror.New(gwerror.RateLimitedPrincipal, "").WithRetryAfter(time.Minute))
				return
			}
		}

		if !a.sem.Acquire(principal.ID, tier.ConcurrentRequests, 5*time.Second) {
			WriteError(w, r, gwerror.New(gwerror.ConcurrencyExceeded, ""))
			return
		}
		defer a.sem.Release(principal.ID)

		ctx := context.WithValue(r.Context(), concurrencyActiveKey, a.sem.ActiveCount(principal.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Admission) checkHourlyWindow(ctx context.Context, principalID string, limit int) (bool, error) {
	key := "admission:principal:" + principalID + ":hour"
	now := time.Now()
	since := now.Add(-1 * time.Hour).UnixNano()

	count, err := a.store.ZRangeCount(ctx, key, since)
	if err != nil {
		return false, err
	}
	if int(count) >= limit {
		return false, nil
	}

	member := strconv.FormatInt(now.UnixNano(), 10)
	if err := a.store.ZAdd(ctx, key, float64(now.UnixNano()), member); err != nil {
		return false, err
	}
	_ = a.store.Expire(ctx, key, 2*time.Hour)
	return true, nil
}
