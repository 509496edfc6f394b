package risk

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// RiskRepository persists risk profiles and per-account limit overrides.
// Grounded on the teacher's RiskLimitsManager (internal/risk/risk_limits.go),
// which fronts its store with an in-process cache and a buffered write
// channel; this core keeps that shape but drops the SQL-backed persistence
// the teacher layered underneath, since this service has no database of its
// own (spec §1 treats the repository as an injected collaborator).
type RiskRepository interface {
	ListProfileIDs(ctx context.Context) ([]string, error)
	GetProfile(ctx context.Context, profileID string) (*RiskProfile, error)
	PutProfile(ctx context.Context, profile *RiskProfile) error

	GetAccountLimits(ctx context.Context, accountID string) (*AccountRiskLimits, error)
	PutAccountLimits(ctx context.Context, limits *AccountRiskLimits) error
	ListAccountIDs(ctx context.Context) ([]string, error)
}

// writeRequest is one queued mutation, processed by the repository's single
// writer goroutine. PutProfile/PutAccountLimits hand the request over and wait
// on done until the writer has applied it under the write lock.
type writeRequest struct {
	kind    string // "profile" or "account_limits"
	profile *RiskProfile
	limits  *AccountRiskLimits
	done    chan error
}

// inMemoryRepository is the default RiskRepository: maps guarded by
// sync.RWMutex, with writes funneled through a single buffered channel and
// applied by one consumer goroutine — the batch-write pattern from
// RiskLimitsManager, adapted from "persist to Postgres" to "apply in process"
// since there is no SQL layer here. Every write also sets the entry in a
// go-cache instance; reads are served from the maps and never consult it.
type inMemoryRepository struct {
	log *zap.Logger

	mu       sync.RWMutex
	profiles map[string]*RiskProfile
	accounts map[string]*AccountRiskLimits

	cache *gocache.Cache

	writes chan writeRequest
	done   chan struct{}
}

// NewInMemoryRepository constructs a RiskRepository and starts its batch
// write loop. Callers must call Close to stop the loop.
func NewInMemoryRepository(log *zap.Logger) *inMemoryRepository {
	r := &inMemoryRepository{
		log:      log,
		profiles: make(map[string]*RiskProfile),
		accounts: make(map[string]*AccountRiskLimits),
		cache:    gocache.New(5*time.Minute, 10*time.Minute),
		writes:   make(chan writeRequest, 256),
		done:     make(chan struct{}),
	}
	go r.runWriteLoop()
	return r
}

func (r *inMemoryRepository) Close() {
	close(r.writes)
	<-r.done
}

func (r *inMemoryRepository) runWriteLoop() {
	defer close(r.done)
	for req := range r.writes {
		var err error
		switch req.kind {
		case "profile":
			err = r.applyPutProfile(req.profile)
		case "account_limits":
			err = r.applyPutAccountLimits(req.limits)
		}
		if req.done != nil {
			req.done <- err
		}
	}
}

func (r *inMemoryRepository) applyPutProfile(p *RiskProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = p
	r.cache.Set("profile:"+p.ID, p, gocache.DefaultExpiration)
	return nil
}

func (r *inMemoryRepository) applyPutAccountLimits(l *AccountRiskLimits) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[l.AccountID] = l
	r.cache.Set("account:"+l.AccountID, l, gocache.DefaultExpiration)
	return nil
}

func (r *inMemoryRepository) ListProfileIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *inMemoryRepository) GetProfile(ctx context.Context, profileID string) (*RiskProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[profileID]
	if !ok {
		return nil, errProfileNotFound(profileID)
	}
	return p, nil
}

func (r *inMemoryRepository) PutProfile(ctx context.Context, profile *RiskProfile) error {
	done := make(chan error, 1)
	select {
	case r.writes <- writeRequest{kind: "profile", profile: profile, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *inMemoryRepository) GetAccountLimits(ctx context.Context, accountID string) (*AccountRiskLimits, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.accounts[accountID]
	if !ok {
		return nil, errAccountNotFound(accountID)
	}
	return l, nil
}

func (r *inMemoryRepository) PutAccountLimits(ctx context.Context, limits *AccountRiskLimits) error {
	done := make(chan error, 1)
	select {
	case r.writes <- writeRequest{kind: "account_limits", limits: limits, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *inMemoryRepository) ListAccountIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	return ids, nil
}

// newRequestID generates a correlation ID for outbound events and log
// fields, mirroring the teacher's uuid.New().String() usage throughout
// internal/risk.
func newRequestID() string {
	return uuid.New().String()
}
