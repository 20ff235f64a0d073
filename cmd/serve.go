package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/instructoria/internal/config"
	"github.com/abhisek/instructoria/internal/content"
	"github.com/abhisek/instructoria/internal/llm"
	"github.com/abhisek/instructoria/internal/logger"
	"github.com/abhisek/instructoria/internal/prompt"
	"github.com/abhisek/instructoria/internal/ratelimit"
	"github.com/abhisek/instructoria/internal/server"
	"github.com/abhisek/instructoria/internal/tracing"
	"github.com/abhisek/instructoria/internal/tutor"
	"github.com/abhisek/instructoria/internal/verify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP tutoring service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := tracing.Setup(tracing.Config{
			Enabled:     cfg.Tracing.Enabled,
			Environment: cfg.Env,
			Version:     buildVersion(),
		}, log)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				log.Warn("tracing.shutdown_failed", "error", err)
			}
		}()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		provCfg := cfg.ProviderConfig()
		if err := provCfg.Validate(); err != nil {
			return fmt.Errorf("LLM provider not configured: %w", err)
		}
		cfg.AdaptModels(provCfg.Provider)
		provider, err := llm.NewProvider(ctx, provCfg, st.EventRepo(), log)
		if err != nil {
			return err
		}

		dir := content.NewDir(cfg.Lessons.Dir, log)
		svc := tutor.NewService(tutor.Deps{
			Store:    st,
			Content:  content.Chain{dir, content.NewDB(st.Lessons())},
			Provider: provider,
			Verifier: verify.New(provider, cfg.VerifyConfig(), log),
			Composer: prompt.New(cfg.PromptConfig()),
			Logger:   log,
		}, cfg.TutorConfig())

		limiter, closeLimiter, err := newLimiter(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeLimiter()

		var auth server.Authenticator = server.HeaderAuthenticator{}
		if cfg.Auth.Mode == config.AuthJWT {
			auth = server.JWTAuthenticator{Secret: []byte(cfg.Auth.Secret)}
		}

		srv := server.New(server.Deps{
			Tutor:   svc,
			Auth:    auth,
			Limiter: limiter,
			DB:      st,
			Logger:  log,
		}, server.Config{
			Addr:            cfg.Server.Addr,
			CORSOrigins:     cfg.Server.CORSOrigins,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			ChatRateLimit:   ratelimit.Policy{Limit: cfg.RateLimit.Limit, Window: cfg.RateLimit.Window},
		})

		log.Info("serve.starting",
			"env", cfg.Env,
			"provider", provCfg.Provider,
			"lessons_dir", dir.Root(),
			"auth", cfg.Auth.Mode,
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx) })
		if cfg.Lessons.Watch {
			g.Go(func() error { return dir.Watch(gctx) })
		}
		return g.Wait()
	},
}

// newLimiter returns the shared Redis limiter when Redis is configured and
// the in-process one otherwise.
func newLimiter(ctx context.Context, cfg *config.Config, log *logger.Logger) (ratelimit.Limiter, func(), error) {
	if cfg.Redis.Addr == "" {
		m := ratelimit.NewMemory()
		return m, func() { m.Close() }, nil
	}
	rdb, err := ratelimit.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	log.Info("ratelimit.redis", "addr", cfg.Redis.Addr)
	return ratelimit.NewRedis(rdb, ""), func() { rdb.Close() }, nil
}
