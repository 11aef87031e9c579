package pos

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/backoffice"
	"github.com/noah-isme/backend-kasir/internal/barcode"
	"github.com/noah-isme/backend-kasir/internal/scan"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

// Terminal defaults.
const (
	DefaultSearchDebounce = 300 * time.Millisecond
	DefaultSearchLimit    = 20
	DefaultMaxTerminals   = 1024
	DefaultTerminalIdle   = 30 * time.Minute
)

// ScanConfig tunes the per-session scan and search controllers.
type ScanConfig struct {
	Debounce        time.Duration
	DedupWindow     time.Duration
	SearchDebounce  time.Duration
	SearchLimit     int
	CriticalFields  []string
	SwapYZ          bool
	CacheSize       int
	CacheTTL        time.Duration
	MaxTerminals    int
	TerminalIdleTTL time.Duration
}

func (c ScanConfig) withDefaults() ScanConfig {
	if c.Debounce <= 0 {
		c.Debounce = scan.DefaultDebounce
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = scan.DefaultDedupWindow
	}
	if c.SearchDebounce <= 0 {
		c.SearchDebounce = DefaultSearchDebounce
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = DefaultSearchLimit
	}
	if c.CriticalFields == nil {
		c.CriticalFields = scan.DefaultCriticalFields
	}
	if c.MaxTerminals <= 0 {
		c.MaxTerminals = DefaultMaxTerminals
	}
	if c.TerminalIdleTTL <= 0 {
		c.TerminalIdleTTL = DefaultTerminalIdle
	}
	return c
}

// Terminal holds the controllers of one POS session. Focus state is shared:
// a focused price or discount input suspends both scanning and search.
type Terminal struct {
	Scan   *scan.Controller[backoffice.Product]
	Search *scan.Controller[[]backoffice.Product]

	mu         sync.Mutex
	lastSearch SearchResult
}

// SearchResult is the outcome of the latest search typed on the terminal.
type SearchResult struct {
	Query    string               `json:"query"`
	Status   string               `json:"status"`
	Products []backoffice.Product `json:"products"`
	Message  string               `json:"message,omitempty"`
}

// LastSearch returns the latest settled keystroke search. Status is "idle"
// until one completes.
func (t *Terminal) LastSearch() SearchResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.lastSearch
	if out.Status == "" {
		out.Status = scan.StateIdle.String()
	}
	if out.Products == nil {
		out.Products = []backoffice.Product{}
	}
	return out
}

func (t *Terminal) keepSearch(res scan.Result[[]backoffice.Product]) {
	if res.Status == scan.StatusSuperseded {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSearch = SearchResult{Query: res.Code, Status: res.Status.String(), Products: res.Value, Message: res.Message}
}

// Focus forwards a focus change to both controllers.
func (t *Terminal) Focus(field string) {
	t.Scan.Focus(field)
	t.Search.Focus(field)
}

// Blur forwards a blur to both controllers.
func (t *Terminal) Blur(field string) {
	t.Scan.Blur(field)
	t.Search.Blur(field)
}

func (t *Terminal) close() {
	t.Scan.Cancel()
	t.Search.Cancel()
}

// Terminals keeps the controllers of recently active sessions in process.
// Idle terminals expire and have their pending lookups cancelled.
type Terminals struct {
	mu     sync.Mutex
	cfg    ScanConfig
	lru    *expirable.LRU[string, *Terminal]
	lookup scan.LookupFunc[backoffice.Product]
	search scan.LookupFunc[[]backoffice.Product]
	found  func(ctx context.Context, sessionID string, p backoffice.Product)
	logger *zerolog.Logger
}

// NewTerminals builds the registry. found is invoked for products resolved
// through the debounced keystroke path.
func NewTerminals(cfg ScanConfig, catalog Catalog, found func(ctx context.Context, sessionID string, p backoffice.Product), logger *zerolog.Logger) *Terminals {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = &posNopLogger
	}
	cache := scan.NewLookupCache[backoffice.Product](cfg.CacheSize, cfg.CacheTTL)
	t := &Terminals{
		cfg:    cfg,
		lookup: scan.Cached(cache, catalog.LookupBarcode),
		search: func(ctx context.Context, q string) ([]backoffice.Product, error) {
			return catalog.Search(ctx, q, cfg.SearchLimit)
		},
		found:  found,
		logger: logger,
	}
	t.lru = expirable.NewLRU[string, *Terminal](cfg.MaxTerminals, func(_ string, term *Terminal) {
		term.close()
	}, cfg.TerminalIdleTTL)
	return t
}

func terminalKey(ctx context.Context, sessionID string) string {
	id, _ := tenant.From(ctx)
	return tenant.PrefixKey(id, sessionID)
}

// Get returns the terminal of a session, creating it on first use. Lookups
// started from the keystroke path inherit the tenant of ctx.
func (t *Terminals) Get(ctx context.Context, sessionID string) *Terminal {
	key := terminalKey(ctx, sessionID)
	t.mu.Lock()
	defer t.mu.Unlock()
	if term, ok := t.lru.Get(key); ok {
		return term
	}
	base := context.WithoutCancel(ctx)
	normalizer := barcode.Normalizer{SwapYZ: t.cfg.SwapYZ}
	term := &Terminal{}
	term.Scan = scan.New(t.lookup, scan.Options{
		Debounce:       t.cfg.Debounce,
		DedupWindow:    t.cfg.DedupWindow,
		CriticalFields: t.cfg.CriticalFields,
		Normalize:      normalizer.Normalize,
		NotFound:       isNotFound,
		Name:           "barcode",
		BaseContext:    base,
		Logger:         t.logger,
	}, func(res scan.Result[backoffice.Product]) {
		if res.Status == scan.StatusFound && t.found != nil {
			t.found(base, sessionID, res.Value)
		}
	})
	term.Search = scan.New(t.search, scan.Options{
		Debounce:       t.cfg.SearchDebounce,
		CriticalFields: t.cfg.CriticalFields,
		NotFound:       isNotFound,
		Name:           "search",
		BaseContext:    base,
		Logger:         t.logger,
	}, term.keepSearch)
	t.lru.Add(key, term)
	return term
}

// Drop discards the terminal of a session, cancelling pending work.
func (t *Terminals) Drop(ctx context.Context, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lru.Remove(terminalKey(ctx, sessionID))
}

// Len reports the number of live terminals.
func (t *Terminals) Len() int {
	return t.lru.Len()
}

func isNotFound(err error) bool {
	return errors.Is(err, backoffice.ErrNotFound)
}
