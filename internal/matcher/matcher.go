// Package matcher tests catalog text against regular-expression search terms.
package matcher

import (
	"regexp"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

const (
	defaultTTL     = 30 * time.Minute
	defaultCleanup = time.Hour
)

// Compiler compiles terms and keeps valid patterns for reuse across cycles.
type Compiler struct {
	patterns *cache.Cache
}

// NewCompiler returns a Compiler whose compiled patterns expire after ttl.
func NewCompiler(ttl time.Duration) *Compiler {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Compiler{patterns: cache.New(ttl, defaultCleanup)}
}

// Compile returns the compiled pattern for term.
func (c *Compiler) Compile(term string) (*regexp.Regexp, error) {
	if obj, found := c.patterns.Get(term); found {
		return obj.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(term)
	if err != nil {
		return nil, &alert.TermError{Term: term, Err: err}
	}
	c.patterns.SetDefault(term, re)
	return re, nil
}

// Matcher implements alert.TermMatcher for the duration of one cycle.
// A term that fails to compile is reported once and never matches again
// for the lifetime of the Matcher.
type Matcher struct {
	compiler *Compiler
	logger   *zap.Logger

	mu       sync.Mutex
	disabled map[string]error
}

// New creates a Matcher backed by compiler. A nil compiler gets a private one.
func New(compiler *Compiler, logger *zap.Logger) *Matcher {
	if compiler == nil {
		compiler = NewCompiler(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		compiler: compiler,
		logger:   logger,
		disabled: make(map[string]error),
	}
}

// Matches reports whether term matches anywhere inside text.
func (m *Matcher) Matches(text, term string) bool {
	m.mu.Lock()
	if _, off := m.disabled[term]; off {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	re, err := m.compiler.Compile(term)
	if err != nil {
		m.disable(term, err)
		return false
	}
	return re.MatchString(text)
}

// Disabled returns the terms turned off in this cycle with their errors.
func (m *Matcher) Disabled() map[string]error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]error, len(m.disabled))
	for term, err := range m.disabled {
		out[term] = err
	}
	return out
}

func (m *Matcher) disable(term string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.disabled[term]; seen {
		return
	}
	m.disabled[term] = err
	m.logger.Warn("search term disabled for this cycle", zap.String("term", term), zap.Error(err))
}
