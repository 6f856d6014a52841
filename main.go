package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/webaffe/webaffe/backend/console/handlers"
	"github.com/webaffe/webaffe/backend/console/internal/authstate"
	boardhandler "github.com/webaffe/webaffe/backend/console/internal/board/handler"
	boardrepo "github.com/webaffe/webaffe/backend/console/internal/board/repository"
	boardservice "github.com/webaffe/webaffe/backend/console/internal/board/service"
	"github.com/webaffe/webaffe/backend/console/internal/config"
	"github.com/webaffe/webaffe/backend/console/internal/database"
	"github.com/webaffe/webaffe/backend/console/internal/identity"
	"github.com/webaffe/webaffe/backend/console/internal/oidc"
	"github.com/webaffe/webaffe/backend/console/internal/sessions"
	"github.com/webaffe/webaffe/backend/console/internal/users"
	"github.com/webaffe/webaffe/backend/console/pkg/logger"
	"github.com/webaffe/webaffe/backend/console/pkg/metrics"
	"github.com/webaffe/webaffe/backend/console/pkg/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

var startTime = time.Now()

const mongoAttempts = 5

func main() {
	// LOG_LEVEL is honoured before config so config errors are visible
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Setup(os.Stdout, cfg.Log.Format)
	logger.Init(cfg.Log.Level)
	logger.Infof("config loaded: mongo=%v redis=%v google=%v smtp=%v", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.Google.Enabled(), cfg.SMTP.Host != "")

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(gin.Logger(), gin.Recovery())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis backs sessions, the local store, the link ledger and the
	// distributed rate limiter when reachable.
	var redisClient *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err == nil {
			redisClient = client
			logger.Infof("connected to Redis at %s", addr)
		} else {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
			_ = client.Close()
		}
	}
	// The limiter runs after the session gates on gated groups, so signed-in
	// requests are counted per uid and the rest per client IP.
	var limiter gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			limiter = middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win)
		} else {
			limiter = middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
	}
	limited := func(h ...gin.HandlerFunc) []gin.HandlerFunc {
		if limiter != nil {
			h = append(h, limiter)
		}
		return h
	}

	var db *mongo.Database
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, mongoAttempts)
		if err != nil {
			logger.Warnf("MongoDB unavailable, falling back to in-memory stores: %v", err)
		} else {
			defer func() { _ = client.Disconnect(context.Background()) }()
			db = client.Database(cfg.MongoDB.Database)
		}
	}

	// profile + config store
	var profileRepo users.ProfileRepository
	var configRepo users.ConfigRepository
	var credRepo identity.CredentialRepository
	var boardSvc boardservice.Service
	if db != nil {
		profileRepo = users.NewMongoProfileRepository(db.Collection(database.UsersCollection))
		configRepo = users.NewMongoConfigRepository(db.Collection(database.ConfigCollection))
		creds := identity.NewMongoCredentialRepository(db.Collection(database.IdentitiesCollection))
		if err := creds.EnsureIndexes(ctx); err != nil {
			logger.Warnf("ensure credential indexes: %v", err)
		}
		credRepo = creds
		boards := boardrepo.NewMongoRepo(db)
		if err := boards.EnsureIndexes(ctx); err != nil {
			logger.Warnf("ensure board indexes: %v", err)
		}
		boardSvc = boardservice.New(boards)
	} else {
		mem := users.NewMemoryRepository()
		profileRepo, configRepo = mem, mem
		credRepo = identity.NewMemoryCredentialRepository()
		boardSvc = boardservice.NewMemoryService()
	}
	if cfg.Auth.BootstrapAdminEmail == "" {
		logger.Warn("BOOTSTRAP_ADMIN_EMAIL is not set; no account will be auto-approved")
	}
	userSvc := users.NewService(profileRepo, configRepo, cfg.Auth.BootstrapAdminEmail)

	// session persistence: Redis, then Mongo, then memory
	var sessionRepo sessions.Repository
	var local sessions.LocalStore
	switch {
	case redisClient != nil:
		sessionRepo = sessions.NewRedisRepository(redisClient, "session:")
		logger.Infof("using Redis for session storage")
	case db != nil:
		sessionRepo = sessions.NewMongoRepository(db.Collection(database.SessionsCollection))
		logger.Infof("using MongoDB for session storage")
	default:
		sessionRepo = sessions.NewMemoryRepository()
		logger.Warn("using in-memory session storage; sessions will not survive a restart")
	}
	if redisClient != nil {
		local = sessions.NewRedisLocalStore(redisClient, cfg.Auth.LocalScope)
	} else {
		local = sessions.NewMemoryLocalStore()
	}
	sessionSvc := sessions.NewService(sessionRepo, local, cfg.Auth.SessionTTL)

	var mailer identity.Mailer = identity.LogMailer{}
	if cfg.SMTP.Host != "" {
		mailer = identity.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	}

	opts := identity.Options{
		MinPasswordLength: cfg.Auth.MinPasswordLength,
		SignInRPS:         cfg.Auth.SignInRPS,
		SignInBurst:       cfg.Auth.SignInBurst,
		LinkSecret:        cfg.MagicLink.Secret,
		LinkTTL:           cfg.MagicLink.TTL,
		LinkBaseURL:       cfg.MagicLink.BaseURL,
		Google:            googleOptions(ctx, cfg.Google),
	}
	if opts.LinkSecret == "" {
		logger.Warn("MAGIC_LINK_SECRET is not set; passwordless sign-in links are disabled")
	}
	provider := identity.NewProvider(credRepo, sessionSvc, local, sessions.NewLinkLedger(redisClient), mailer, opts)

	store := authstate.NewStore()
	store.Subscribe(func(st authstate.State) {
		logger.Debugf("session phase=%s", st.Phase())
	})
	listener := authstate.NewListener(provider, userSvc, store, cfg.MongoDB.Timeout)
	listener.Start(ctx)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready once the first identity transition has settled
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{
			"session": !store.Snapshot().Loading,
			"mongo":   cfg.MongoDB.URI == "" || db != nil,
			"redis":   cfg.Redis.Host == "" || redisClient != nil,
			"google":  !cfg.Google.Enabled() || provider.GoogleEnabled(),
		}
		ready := deps["session"]
		uptime := time.Since(startTime).String()
		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": uptime})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": uptime})
	})

	handlers.NewAuthHandler(provider, store).Register(r.Group("/", limited()...))
	handlers.RegisterSwagger(r)

	admin := r.Group("/api/admin", limited(middleware.RequireAdmin(store, sessionSvc))...)
	handlers.NewAdminHandler(userSvc, listener).Register(admin)
	boardhandler.RegisterBoardRoutes(admin, boardSvc)

	handlers.RegisterAppRoutes(r.Group("/api/app", limited(middleware.RequireApproved(store, sessionSvc))...))

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // session events stream indefinitely
	}
	logger.Infof("starting console on %s", addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()
	select {}
}

// googleOptions discovers Google's OIDC configuration. Discovery failure
// disables popup sign-in unless ALLOW_INSECURE_TOKEN is set for integration
// runs, in which case ID tokens are decoded without signature checks.
func googleOptions(ctx context.Context, g config.GoogleConfig) *identity.GoogleOptions {
	if !g.Enabled() {
		return nil
	}
	oc := oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		RedirectURL:  g.RedirectURL,
		Scopes:       []string{"openid", "email", "profile"},
	}
	ver, err := oidc.NewVerifier(ctx, g.Issuer, g.ClientID)
	if err == nil {
		oc.Endpoint = ver.Endpoint()
		return &identity.GoogleOptions{OAuth2: oc, Verifier: ver}
	}
	logger.Warnf("failed to initialize Google OIDC verifier: %v", err)
	if strings.EqualFold(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN")), "true") {
		logger.Warn("enabling insecure ID token verifier (integration mode)")
		oc.Endpoint = endpoints.Google
		return &identity.GoogleOptions{OAuth2: oc, Verifier: oidc.NewInsecureVerifier()}
	}
	return nil
}
