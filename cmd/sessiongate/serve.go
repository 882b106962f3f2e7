// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/holomush/sessiongate/internal/access"
	"github.com/holomush/sessiongate/internal/auth"
	"github.com/holomush/sessiongate/internal/chat"
	"github.com/holomush/sessiongate/internal/config"
	"github.com/holomush/sessiongate/internal/control"
	"github.com/holomush/sessiongate/internal/logging"
	"github.com/holomush/sessiongate/internal/observability"
	"github.com/holomush/sessiongate/internal/protocol"
	"github.com/holomush/sessiongate/internal/tcp"
	"github.com/holomush/sessiongate/internal/throttle"
	"github.com/holomush/sessiongate/internal/transport"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the session gateway",
		Long: `Start the TCP session gateway together with its metrics endpoint,
control socket and optional gRPC health service.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Service: "sessiongate",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	gw, err := newGateway(ctx, cfg, logger)
	if err != nil {
		return err
	}
	cmd.Println("sessiongate started")
	return gw.run(ctx)
}

// gateway is one fully wired server process.
type gateway struct {
	cfg    *config.Config
	logger *slog.Logger

	accounts *accountStore
	tcp      *tcp.Server
	protocol *protocol.Server[ulid.ULID]
	control  *control.Server
	health   *control.HealthServer
	obs      *observability.Server
	limiter  *throttle.Limiter

	// shutdown is set by run; the control socket calls it.
	shutdown context.CancelFunc
}

func newGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gateway, error) {
	policy, err := protocol.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}

	accounts, err := openAccounts(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	gw := &gateway{cfg: cfg, logger: logger, accounts: accounts}
	ok := false
	defer func() {
		if !ok {
			accounts.close()
			gw.closeLimiter()
		}
	}()

	hasher := auth.NewArgon2idHasher()
	if cfg.SeedFile != "" {
		seeds, err := auth.ReadSeeds(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		created, err := seeds.Apply(ctx, accounts.repo, hasher)
		if err != nil {
			return nil, err
		}
		logger.Info("seed accounts applied", "path", cfg.SeedFile, "created", created)
	}

	svc, err := auth.NewService(accounts.repo, hasher, logger)
	if err != nil {
		return nil, err
	}

	router := transport.NewRouter()
	// gate needs the tcp server as its sender and the session store for
	// bypass checks, so it is bound further down.
	var gate *throttle.Gate
	var dispatcher tcp.Dispatcher = router
	if cfg.RatePerSecond > 0 {
		gw.limiter = throttle.NewLimiter(throttle.Config{Burst: cfg.RateBurst, Rate: cfg.RatePerSecond})
		dispatcher = dispatchFunc(func(ctx context.Context, conn transport.ConnID, name string, payload transport.Payload) error {
			return gate.Dispatch(ctx, conn, name, payload)
		})
	}
	gw.tcp, err = tcp.NewServer(tcp.Config{
		Addr:    cfg.ListenAddr,
		Workers: cfg.Workers,
		Logger:  logger,
	}, dispatcher)
	if err != nil {
		return nil, err
	}

	room := chat.NewRoom[ulid.ULID](gw.tcp, displayName, logger)
	joined, left := room.Hooks()

	var onTimeout protocol.TimeoutFunc
	if cfg.CloseOnTimeout {
		onTimeout = func(_ context.Context, conn transport.ConnID) {
			if err := gw.tcp.Close(conn); err != nil {
				logger.Debug("failed to close timed out connection", "conn_id", conn, "error", err)
			}
		}
	}

	// A zero login-timeout means never; the protocol spells that negative.
	loginTimeout := cfg.LoginTimeout
	if loginTimeout == 0 {
		loginTimeout = -1
	}

	gw.protocol, err = protocol.NewServer(protocol.Config[ulid.ULID]{
		Transport:    gw.tcp,
		Accounts:     svc,
		Policy:       policy,
		LoginTimeout: loginTimeout,
		TickInterval: cfg.TickInterval,
		OnTimeout:    onTimeout,
		Hooks: protocol.Hooks[ulid.ULID]{
			// Roles are stored first so the room's hook sees a complete session.
			Starting: []protocol.StartingHook[ulid.ULID]{
				func(ctx context.Context, conn transport.ConnID, account protocol.Account[ulid.ULID]) error {
					return svc.StartingHook(gw.protocol.Sessions())(ctx, conn, account)
				},
				joined,
			},
			Terminating: []protocol.TerminatingHook{left},
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	grants := access.DefaultGrants()
	sessions := gw.protocol.Sessions()
	if gw.limiter != nil {
		gate = throttle.NewGate(gw.limiter, router, gw.tcp,
			access.Require(grants, sessions, auth.RolesKey, access.PermThrottleBypass), logger)
	}
	if err := gw.protocol.Mount(router); err != nil {
		return nil, err
	}
	if err := svc.Mount(gw.protocol, router); err != nil {
		return nil, err
	}
	if err := room.Mount(gw.protocol, router,
		access.Require(grants, sessions, auth.RolesKey, access.PermChatSay),
		access.Require(grants, sessions, auth.RolesKey, access.PermChatEmote),
	); err != nil {
		return nil, err
	}

	gw.control = control.NewServer(
		control.NewProtocolBackend(gw.protocol, ulid.ParseStrict),
		control.Options{
			SocketPath: cfg.ControlSocket,
			Version:    version,
			Shutdown:   func() { gw.stop() },
			Logger:     logger,
		},
	)

	if cfg.MetricsAddr != "" {
		gw.obs = observability.NewServer(cfg.MetricsAddr, gw.ready, logger)
		protocol.RegisterMetrics(gw.obs.Registry())
		tcp.RegisterMetrics(gw.obs.Registry())
		throttle.RegisterMetrics(gw.obs.Registry())
	}
	if cfg.GRPCHealthAddr != "" {
		gw.health = control.NewHealthServer(logger)
	}

	ok = true
	return gw, nil
}

// displayName is the chat name of an account.
func displayName(account protocol.Account[ulid.ULID]) string {
	if a, ok := account.(*auth.Account); ok {
		return a.Username
	}
	return account.AccountID().String()
}

type dispatchFunc func(ctx context.Context, conn transport.ConnID, name string, payload transport.Payload) error

func (f dispatchFunc) Dispatch(ctx context.Context, conn transport.ConnID, name string, payload transport.Payload) error {
	return f(ctx, conn, name, payload)
}

// lifecycle is what the tcp server reports connection events to.
func (g *gateway) lifecycle() transport.Lifecycle {
	if g.limiter == nil {
		return g.protocol
	}
	return throttle.ForgetOnDisconnect(g.protocol, g.limiter)
}

func (g *gateway) closeLimiter() {
	if g.limiter != nil {
		g.limiter.Close()
		g.limiter = nil
	}
}

func (g *gateway) ready() error {
	if g.tcp.Addr() == "" {
		return errors.New("tcp listener not bound")
	}
	return nil
}

func (g *gateway) stop() {
	if g.shutdown != nil {
		g.shutdown()
	}
}

// run serves until ctx ends, a component fails or the control socket asks
// for a shutdown.
func (g *gateway) run(ctx context.Context) error {
	defer g.accounts.close()
	defer g.closeLimiter()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.shutdown = cancel

	if err := g.control.Start(); err != nil {
		return err
	}
	g.logger.Info("control socket started", "path", g.control.SocketPath())

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error { return g.tcp.Run(ctx, g.lifecycle()) })
	eg.Go(func() error { return g.protocol.Run(ctx) })
	eg.Go(func() error {
		<-ctx.Done()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		return g.control.Stop(stopCtx)
	})

	if g.obs != nil {
		errCh, err := g.obs.Start()
		if err != nil {
			cancel()
			_ = eg.Wait()
			return err
		}
		eg.Go(func() error {
			return g.watch(ctx, "observability", errCh, func(stopCtx context.Context) error {
				return g.obs.Stop(stopCtx)
			})
		})
	}

	if g.health != nil {
		errCh, err := g.health.Start(g.cfg.GRPCHealthAddr)
		if err != nil {
			cancel()
			_ = eg.Wait()
			return err
		}
		g.health.SetServing(true)
		eg.Go(func() error {
			return g.watch(ctx, "grpc-health", errCh, func(stopCtx context.Context) error {
				g.health.Stop(stopCtx)
				return nil
			})
		})
	}

	g.logger.Info("sessiongate ready",
		"listen_addr", g.cfg.ListenAddr,
		"policy", g.protocol.Policy().String(),
		"account_store", g.cfg.AccountStore,
	)

	err := eg.Wait()
	if err != nil {
		g.logger.Error("shutting down after failure", "error", err)
		return err
	}
	g.logger.Info("shutdown complete")
	return nil
}

// watch waits for a server error or for ctx to end, then stops the server.
// A server error fails the whole group.
func (g *gateway) watch(ctx context.Context, name string, errCh <-chan error, stop func(context.Context) error) error {
	var serveErr error
	select {
	case err, open := <-errCh:
		if open && err != nil {
			g.logger.Error("server error, triggering shutdown", "server", name, "error", err)
			serveErr = err
		}
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(stopCtx); err != nil {
		g.logger.Warn("error stopping server", "server", name, "error", err)
	}
	return serveErr
}
