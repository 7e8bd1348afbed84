// Package security implements C6: input sanitization, malicious-pattern
// detection, IP reputation (suspicion scoring + a block set), and output
// PII/secret masking. It is invoked twice per request by the router (C7):
// once before admission control to gate and sanitize the inbound request,
// and once after the handler returns to filter the outbound body.
package security

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfreddev/aigateway/config"
)

const (
	blockDuration    = 24 * time.Hour
	suspicionWindow  = time.Hour
	janitorInterval  = time.Hour
)

// suspicionRecord tracks how many times an IP has tripped a detector and
// when it last did so.
type suspicionRecord struct {
	ticks    int
	lastTick time.Time
}

// Filter is the C6 security filter. One instance is constructed at startup
// and shared by every request goroutine; its mutex-guarded maps follow the
// same guarded-map idiom the admission controller uses for its semaphores.
type Filter struct {
	cfg    *config.Config
	logger zerolog.Logger

	mu        sync.Mutex
	suspicion map[string]*suspicionRecord
	blocked   map[string]time.Time

	blockTicks int

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Filter. blockTicks is the number of suspicion ticks an
// IP accumulates before it is blocked (defaults to cfg.IPBlacklistTicks,
// shared with C5's per-IP escalation threshold).
func New(cfg *config.Config, logger zerolog.Logger) *Filter {
	ticks := cfg.IPBlacklistTicks
	if ticks <= 0 {
		ticks = 5
	}
	return &Filter{
		cfg:        cfg,
		logger:     logger.With().Str("component", "security").Logger(),
		suspicion:  make(map[string]*suspicionRecord),
		blocked:    make(map[string]time.Time),
		blockTicks: ticks,
	}
}

// RecordTick registers one suspicious-activity tick against ip. Implements
// middleware.SuspicionRecorder so C5 can escalate per-IP rate-limit
// violations here without this package importing middleware. Once an IP
// accumulates blockTicks+ ticks it is blocked for blockDuration.
func (f *Filter) RecordTick(ip string) {
	if ip == "" {
		return
	}
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.suspicion[ip]
	if !ok || now.Sub(rec.lastTick) > suspicionWindow {
		rec = &suspicionRecord{}
		f.suspicion[ip] = rec
	}
	rec.ticks++
	rec.lastTick = now

	if rec.ticks >= f.blockTicks {
		f.blocked[ip] = now.Add(blockDuration)
		f.logger.Warn().Str("ip", ip).Int("ticks", rec.ticks).Msg("ip blocked")
		delete(f.suspicion, ip)
	}
}

// IsBlocked reports whether ip is currently within an active block window.
func (f *Filter) IsBlocked(ip string) bool {
	if ip == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	until, ok := f.blocked[ip]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(f.blocked, ip)
		return false
	}
	return true
}

// StartJanitor launches the hourly sweep that evicts expired blocks and
// stale suspicion records. Stop cancels it.
func (f *Filter) StartJanitor() {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.sweep()
			}
		}
	}()
}

func (f *Filter) Stop() {
	if f.cancel != nil {
		f.cancel()
		<-f.done
	}
}

func (f *Filter) sweep() {
	now := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()

	for ip, until := range f.blocked {
		if now.After(until) {
			delete(f.blocked, ip)
		}
	}
	for ip, rec := range f.suspicion {
		if now.Sub(rec.lastTick) > suspicionWindow {
			delete(f.suspicion, ip)
		}
	}
	f.logger.Debug().Int("blocked", len(f.blocked)).Int("suspicious", len(f.suspicion)).Msg("janitor sweep")
}
