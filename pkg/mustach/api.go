package mustach

import (
	"io"
	"runtime"
	"sync"
	"time"
)

// Engine is the high-level API most callers use: it composes a Loader
// (Config + Resolver) with a ProgramCache, so repeated PrepareFile calls
// for the same path compile once.
type Engine struct {
	config   *Config
	cache    *ProgramCache
	loader   *Loader
	resolver Resolver
}

// New creates an engine using the global configuration and a
// filesystem-backed Resolver.
func New() *Engine {
	return NewWithConfig(GetGlobalConfig())
}

// NewWithConfig creates an engine with an explicit configuration and a
// filesystem-backed Resolver.
func NewWithConfig(config *Config) *Engine {
	return newEngine(config, FileResolver{})
}

// NewWithResolver creates an engine that resolves partials through r
// instead of the local filesystem — for example a MapResolver over
// embedded templates.
func NewWithResolver(config *Config, r Resolver) *Engine {
	return newEngine(config, r)
}

func newEngine(config *Config, r Resolver) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	loader := NewLoader(r).WithMaxNesting(config.MaxNesting)
	return &Engine{
		config:   config,
		cache:    NewProgramCacheWithConfig(CacheConfig{MaxSize: config.CacheMaxSize, TTL: config.CacheTTL}),
		loader:   loader,
		resolver: r,
	}
}

// PrepareFile compiles the template at path, serving from cache when
// available and caching enabled.
func (e *Engine) PrepareFile(path string) (*Program, error) {
	if e.config.CacheMaxSize > 0 {
		if p, ok := e.cache.Get(path); ok {
			return p, nil
		}
	}

	p, err := e.loader.CompileFile(path)
	if err != nil {
		return nil, err
	}

	if e.config.CacheMaxSize > 0 {
		e.cache.Set(path, p)
	}
	return p, nil
}

// Prepare compiles src, read to EOF, registered under name. Partials it
// references still resolve through the engine's Resolver relative to
// name's directory. Not cached: callers with a stable key should use
// PrepareFile or manage caching themselves via the ProgramCache.
func (e *Engine) Prepare(name string, src io.Reader) (*Program, error) {
	return e.loader.Compile(name, src)
}

// PrepareString compiles src inline under name.
func (e *Engine) PrepareString(name, src string) (*Program, error) {
	return e.loader.CompileString(name, src)
}

// Render evaluates p against data using the default map[string]any
// binding, honoring the engine's StrictMode setting.
func (e *Engine) Render(p *Program, data map[string]any) (string, error) {
	return RenderStrict(p, data, e.config.StrictMode)
}

// RenderMany evaluates p once per entry in datas, concurrently, and
// returns results in the same order. p is a single shared, immutable
// Program: concurrent Evaluate calls against it need no external
// synchronization.
func (e *Engine) RenderMany(p *Program, datas []map[string]any) ([]string, error) {
	results := make([]string, len(datas))
	errs := make([]error, len(datas))

	workers := runtime.GOMAXPROCS(0)
	if workers > len(datas) {
		workers = len(datas)
	}
	if workers < 1 {
		return results, nil
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = e.Render(p, datas[i])
			}
		}()
	}
	for i := range datas {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// SetConfig updates the engine's configuration and its loader's nesting
// limit. The cache is not rebuilt: it keeps the size limit and TTL it
// was created with, and only a CacheMaxSize of 0 changes its use (PrepareFile
// then bypasses it).
func (e *Engine) SetConfig(config *Config) {
	e.config = config
	e.loader.WithMaxNesting(config.MaxNesting)
}

// ClearCache removes all compiled programs from the engine's cache.
func (e *Engine) ClearCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

// Close releases the engine's cache.
func (e *Engine) Close() error {
	return e.cache.Close()
}

// Option configures an Engine constructed via NewWithOptions.
type Option func(*Engine)

// WithConfig returns an option that replaces the engine's configuration.
func WithConfig(config *Config) Option {
	return func(e *Engine) { e.SetConfig(config) }
}

// WithCache returns an option that sets the cache size (0 disables caching).
func WithCache(maxSize int) Option {
	return func(e *Engine) {
		e.config.CacheMaxSize = maxSize
		e.cache = NewProgramCacheWithConfig(CacheConfig{MaxSize: maxSize, TTL: e.config.CacheTTL})
	}
}

// WithResolver returns an option that swaps the engine's partial Resolver.
func WithResolver(r Resolver) Option {
	return func(e *Engine) {
		e.resolver = r
		e.loader = NewLoader(r).WithMaxNesting(e.config.MaxNesting)
	}
}

// NewWithOptions creates an engine with the default configuration, then
// applies opts in order.
func NewWithOptions(opts ...Option) *Engine {
	engine := New()
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// DefaultEngine is the global default engine, backed by the global
// configuration and the local filesystem.
var DefaultEngine = New()

// PrepareFile compiles the template at path using the default engine.
func PrepareFile(path string) (*Program, error) {
	return DefaultEngine.PrepareFile(path)
}

// Prepare compiles src, registered under name, using the default engine.
func Prepare(name string, src io.Reader) (*Program, error) {
	return DefaultEngine.Prepare(name, src)
}

// ClearCache clears the default engine's cache.
func ClearCache() {
	DefaultEngine.ClearCache()
}

// SetCacheConfig updates the global configuration's cache settings and
// rebuilds the default engine's cache to match.
func SetCacheConfig(maxSize int, ttl time.Duration) {
	config := GetGlobalConfig()
	config.CacheMaxSize = maxSize
	config.CacheTTL = ttl
	SetGlobalConfig(config)
	DefaultEngine.SetConfig(config)
	DefaultEngine.cache = NewProgramCacheWithConfig(CacheConfig{MaxSize: maxSize, TTL: ttl})
}
