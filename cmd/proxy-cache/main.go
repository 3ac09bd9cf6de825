package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/proxy-cache/pkg/backend"
	"github.com/Sternrassler/proxy-cache/pkg/cache"
	"github.com/Sternrassler/proxy-cache/pkg/cachecontrol"
	"github.com/Sternrassler/proxy-cache/pkg/logging"
	"github.com/Sternrassler/proxy-cache/pkg/metrics"
	"github.com/Sternrassler/proxy-cache/pkg/proxy"
)

// config holds the process configuration read from the environment.
type config struct {
	Port          string
	AdminPort     string
	OriginURL     *url.URL
	Backend       string
	RedisURL      string
	SQLitePath    string
	DefaultTTL    time.Duration
	PurgeInterval time.Duration
	RulesPath     string
	TagHeader     string
	LogLevel      string
	LogPretty     bool
}

func loadConfig() (config, error) {
	cfg := config{
		Port:       getEnv("PORT", "8080"),
		AdminPort:  getEnv("ADMIN_PORT", "9090"),
		Backend:    strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
		RedisURL:   getEnv("REDIS_URL", "localhost:6379"),
		SQLitePath: getEnv("SQLITE_PATH", "proxy-cache.db"),
		RulesPath:  getEnv("CACHE_RULES", ""),
		TagHeader:  getEnv("CACHE_TAG_HEADER", "Cache-Tag"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.LogPretty, err = strconv.ParseBool(getEnv("LOG_PRETTY", "false")); err != nil {
		return cfg, fmt.Errorf("invalid LOG_PRETTY: %w", err)
	}

	origin := getEnv("ORIGIN_URL", "")
	if origin == "" {
		return cfg, errors.New("ORIGIN_URL is required")
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return cfg, fmt.Errorf("invalid ORIGIN_URL %q", origin)
	}
	cfg.OriginURL = u

	switch cfg.Backend {
	case "memory", "redis", "sqlite":
	default:
		return cfg, fmt.Errorf("unknown CACHE_BACKEND %q (want memory, redis or sqlite)", cfg.Backend)
	}

	if cfg.AdminPort == cfg.Port {
		return cfg, fmt.Errorf("ADMIN_PORT must differ from PORT (%s)", cfg.Port)
	}

	if cfg.DefaultTTL, err = time.ParseDuration(getEnv("DEFAULT_TTL", "0s")); err != nil {
		return cfg, fmt.Errorf("invalid DEFAULT_TTL: %w", err)
	}
	if cfg.DefaultTTL < 0 {
		return cfg, errors.New("DEFAULT_TTL cannot be negative")
	}

	if cfg.PurgeInterval, err = time.ParseDuration(getEnv("PURGE_INTERVAL", "1m")); err != nil {
		return cfg, fmt.Errorf("invalid PURGE_INTERVAL: %w", err)
	}

	return cfg, nil
}

func main() {
	cfg, err := loadConfig()

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.LogLevel)
	logCfg.Pretty = cfg.LogPretty
	logging.Setup(logCfg)
	logger := logging.NewLogger("server")

	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg config, logger zerolog.Logger) error {
	opened, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer opened.Close()
	logger.Info().Str("backend", cfg.Backend).Msg("Cache backend ready")

	if opened.purger != nil && cfg.PurgeInterval > 0 {
		go purgeLoop(ctx, opened.purger, cfg.PurgeInterval, logger)
	}

	var composer *cachecontrol.Composer
	if cfg.RulesPath != "" {
		rules, err := cachecontrol.LoadRules(cfg.RulesPath)
		if err != nil {
			return err
		}
		composer = cachecontrol.NewComposer(rules)
		logger.Info().Int("rules", len(rules)).Str("path", cfg.RulesPath).Msg("Loaded cache-control rules")
	}

	policyCfg := cache.DefaultConfig()
	policyCfg.DefaultTTL = cfg.DefaultTTL
	policy := cache.NewPolicy(cache.NewStore(opened.backend), policyCfg)

	proxySrv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: newProxyRouter(policy, newOriginProxy(cfg.OriginURL, composer, logger), proxyOptions{
			Composer:  composer,
			TagHeader: cfg.TagHeader,
			Logger:    logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	adminSrv := &http.Server{
		Addr:              ":" + cfg.AdminPort,
		Handler:           newAdminRouter(policy.Store(), opened.ready, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	serve := func(srv *http.Server, name string) {
		logger.Info().Str("addr", srv.Addr).Str("listener", name).Msg("Starting listener")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s listener: %w", name, err)
		}
	}
	logger.Info().Str("origin", cfg.OriginURL.String()).Msg("Starting caching proxy")
	go serve(proxySrv, "proxy")
	go serve(adminSrv, "admin")

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := proxySrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// purger is implemented by backends that do not expire entries on their own.
type purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// openedBackend is a backend together with its lifecycle hooks.
type openedBackend struct {
	backend cache.Backend
	ready   func(ctx context.Context) error
	purger  purger
	closer  func() error
}

func (b *openedBackend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

func openBackend(ctx context.Context, cfg config) (*openedBackend, error) {
	switch cfg.Backend {
	case "redis":
		opts, err := redisOptions(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		return &openedBackend{
			backend: backend.NewRedis(client),
			ready:   func(ctx context.Context) error { return client.Ping(ctx).Err() },
			closer:  client.Close,
		}, nil

	case "sqlite":
		db, err := backend.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &openedBackend{
			backend: db,
			ready:   db.Ping,
			purger:  db,
			closer:  db.Close,
		}, nil

	default:
		mem := backend.NewMemory()
		return &openedBackend{
			backend: mem,
			ready:   func(context.Context) error { return nil },
			purger:  mem,
		}, nil
	}
}

// redisOptions accepts either a redis:// URL or a plain host:port address.
func redisOptions(raw string) (*redis.Options, error) {
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}

func purgeLoop(ctx context.Context, p purger, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to purge expired entries")
				continue
			}
			if n > 0 {
				logger.Debug().Int("purged", n).Msg("Purged expired entries")
			}
		}
	}
}

// newOriginProxy forwards requests to origin, letting composer set the
// caching headers of each origin response.
func newOriginProxy(origin *url.URL, composer *cachecontrol.Composer, logger zerolog.Logger) *httputil.ReverseProxy {
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error().Err(err).Str("path", r.URL.Path).Msg("Origin request failed")
			http.Error(w, "origin unavailable", http.StatusBadGateway)
		},
	}
	if composer != nil {
		rp.ModifyResponse = composer.ModifyResponse
	}
	return rp
}

type proxyOptions struct {
	Composer  *cachecontrol.Composer
	TagHeader string
	Logger    zerolog.Logger
}

// newProxyRouter serves every path of the public listener through the cache.
func newProxyRouter(policy *cache.Policy, origin http.Handler, opts proxyOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.AccessLog(opts.Logger))

	next := origin
	if opts.Composer != nil {
		next = opts.Composer.Middleware(origin)
	}

	proxyOpts := proxy.Options{}
	if opts.TagHeader != "" {
		proxyOpts.Tagger = proxy.HeaderTagger(opts.TagHeader)
	}
	r.Handle("/*", proxy.New(policy, next, proxyOpts))

	return r
}

// newAdminRouter serves health, metrics and cache invalidation on the
// internal listener.
func newAdminRouter(store *cache.Store, ready func(ctx context.Context) error, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.AccessLog(logger))

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(ready))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/_cache/tags/{tag}", tagListHandler(store))
	r.Delete("/_cache/tags/{tag}", tagInvalidateHandler(store, logger))

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if check != nil {
			if err := check(ctx); err != nil {
				http.Error(w, fmt.Sprintf("cache backend not ready: %v", err), http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

type tagListing struct {
	Tag         string   `json:"tag"`
	Identifiers []string `json:"identifiers"`
}

type tagInvalidation struct {
	Tag     string `json:"tag"`
	Removed int    `json:"removed"`
}

func tagListHandler(store *cache.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tag := chi.URLParam(r, "tag")

		entries, err := store.GetByTag(r.Context(), tag)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		listing := tagListing{Tag: tag, Identifiers: make([]string, 0, len(entries))}
		for id := range entries {
			listing.Identifiers = append(listing.Identifiers, id)
		}
		sort.Strings(listing.Identifiers)
		writeJSON(w, http.StatusOK, listing)
	}
}

func tagInvalidateHandler(store *cache.Store, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tag := chi.URLParam(r, "tag")

		removed, err := store.InvalidateTag(r.Context(), tag)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		logger.Info().Str("tag", tag).Int("removed", removed).Msg("Invalidated tag")
		writeJSON(w, http.StatusOK, tagInvalidation{Tag: tag, Removed: removed})
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cache.ErrInvalidTag):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, cache.ErrBackendUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
