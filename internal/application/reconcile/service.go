// Package reconcile is the application layer: it imports statements, keeps
// the ledger, runs the matcher over pending bank transactions and records
// the user's confirm/ignore decisions.
package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/eshaffer321/bankrecon/internal/domain/matcher"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/logging"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

var (
	// ErrEmptyStatement is returned when an upload has no account and no transactions
	ErrEmptyStatement = errors.New("statement has no account and no transactions")

	// ErrAlreadyResolved is returned when confirming or ignoring a bank
	// transaction that is no longer PENDING
	ErrAlreadyResolved = errors.New("bank transaction already resolved")

	// ErrKindMismatch is returned when confirming a credit against an
	// expense or a debit against income
	ErrKindMismatch = errors.New("bank and ledger transaction kinds are not compatible")

	// ErrLedgerAlreadyMatched is returned when the ledger transaction is
	// already confirmed against another bank transaction
	ErrLedgerAlreadyMatched = errors.New("ledger transaction already matched")
)

// ValidationError reports the first invalid entry of a ledger batch
type ValidationError struct {
	Index int
	ID    string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("ledger transaction %d (%s): %v", e.Index, e.ID, e.Err)
	}
	return fmt.Sprintf("ledger transaction %d: %v", e.Index, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Options configures a Service
type Options struct {
	Matcher     matcher.Config
	Exclusive   bool          // never suggest one ledger transaction twice in a run
	DedupWindow time.Duration // 0 disables duplicate upload detection

	// Overridable for tests
	Now   func() time.Time
	NewID func() string
}

// DefaultOptions returns the options used when no config is loaded
func DefaultOptions() Options {
	return Options{
		Matcher:     matcher.DefaultConfig(),
		DedupWindow: 10 * time.Minute,
	}
}

// OptionsFromConfig translates the matching and import config sections
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := DefaultOptions()
	opts.Exclusive = cfg.Matching.Exclusive
	opts.DedupWindow = cfg.Import.DedupWindow

	if cfg.Matching.SuggestThreshold > 0 {
		opts.Matcher.SuggestThreshold = cfg.Matching.SuggestThreshold
	}
	if cfg.Matching.Workers > 0 {
		opts.Matcher.Workers = cfg.Matching.Workers
	}
	if cfg.Matching.AmountTolerance != "" {
		tol, err := decimal.NewFromString(cfg.Matching.AmountTolerance)
		if err != nil {
			return Options{}, fmt.Errorf("matching.amount_tolerance: %w", err)
		}
		if !tol.IsPositive() {
			return Options{}, fmt.Errorf("matching.amount_tolerance must be positive, got %s", tol)
		}
		opts.Matcher.AmountTolerance = tol
	}
	return opts, nil
}

// Service coordinates statements, ledger entries and reconciliation runs
type Service struct {
	repo      storage.Repository
	matcher   *matcher.Matcher
	exclusive bool
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	// Recently imported file hashes -> statement ID
	recent   *cache.Cache
	importMu sync.Mutex

	sanitizer *bluemonday.Policy

	// Statement-level locking (one run or decision per statement at a time)
	statementLocks map[string]*sync.Mutex
	locksMutex     sync.Mutex
}

// NewService creates a new reconciliation service.
func NewService(repo storage.Repository, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	s := &Service{
		repo:           repo,
		matcher:        matcher.NewMatcher(opts.Matcher),
		exclusive:      opts.Exclusive,
		logger:         logger.With(logging.ComponentKey, "reconcile"),
		now:            opts.Now,
		newID:          opts.NewID,
		sanitizer:      bluemonday.StrictPolicy(),
		statementLocks: make(map[string]*sync.Mutex),
	}
	if opts.DedupWindow > 0 {
		s.recent = cache.New(opts.DedupWindow, 2*opts.DedupWindow)
	}
	return s
}

// Matcher exposes the configured matcher
func (s *Service) Matcher() *matcher.Matcher {
	return s.matcher
}

// lockStatement serializes runs and decisions on one statement
func (s *Service) lockStatement(id string) func() {
	s.locksMutex.Lock()
	mu, ok := s.statementLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.statementLocks[id] = mu
	}
	s.locksMutex.Unlock()

	mu.Lock()
	return mu.Unlock
}
