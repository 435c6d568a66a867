// Package syncserver wires the session registry, order service, broadcaster
// and transports into one HTTP service.
package syncserver

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"restaurant-sync/internal/common/clock"
	"restaurant-sync/internal/common/config"
	"restaurant-sync/internal/common/db"
	"restaurant-sync/internal/common/httpx"
	"restaurant-sync/internal/common/logger"
	"restaurant-sync/internal/common/mq"
	"restaurant-sync/internal/domain"
	"restaurant-sync/internal/microservices/broadcast"
	"restaurant-sync/internal/microservices/order"
	orderrepo "restaurant-sync/internal/microservices/order/repository"
	"restaurant-sync/internal/microservices/session"
	sessionrepo "restaurant-sync/internal/microservices/session/repository"
)

type stores struct {
	sessions sessionrepo.SessionRepositoryInterface
	orders   orderrepo.OrderRepositoryInterface
	close    func()
}

func openStores(ctx context.Context, cfg config.DB, lg *logger.Logger) (stores, error) {
	if !cfg.Enabled() {
		lg.Info("store_memory", nil)
		return stores{
			sessions: sessionrepo.NewMemoryRepository(),
			orders:   orderrepo.NewMemoryRepository(),
			close:    func() {},
		}, nil
	}
	conn, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		return stores{}, err
	}
	if err := conn.Migrate(ctx); err != nil {
		conn.Close()
		return stores{}, err
	}
	lg.Info("db_connected", map[string]any{"host": cfg.Host, "port": cfg.Port, "database": cfg.Name})
	return stores{
		sessions: sessionrepo.NewSessionRepository(conn.Pool),
		orders:   orderrepo.NewOrderRepository(conn.Pool),
		close:    conn.Close,
	}, nil
}

// App is a fully wired server. Build it with New and start it with Run.
type App struct {
	cfg     config.App
	lg      *logger.Logger
	handler http.Handler
	b       *broadcast.Broadcaster
	session *session.Module
	relay   *broadcast.Relay
	mq      *mq.Client
	stores  stores
}

func New(ctx context.Context, cfg config.App, clk clock.Clock) (*App, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	lg := logger.New("sync-server")

	st, err := openStores(ctx, cfg.Database, lg)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, lg: lg, stores: st}
	a.b = broadcast.New(cfg.Broadcast.QueueSize, logger.New("broadcast"))

	var sink broadcast.Sink = broadcast.Local{B: a.b}
	if cfg.Rabbit.Enabled() {
		client, err := mq.Dial(mq.Config{
			Host: cfg.Rabbit.Host, Port: cfg.Rabbit.Port, User: cfg.Rabbit.User, Pass: cfg.Rabbit.Pass,
			VHost: cfg.Rabbit.VHost, Exchange: cfg.Rabbit.Exchange, Prefetch: cfg.Rabbit.Prefetch,
		})
		if err != nil {
			st.close()
			return nil, fmt.Errorf("rabbitmq connect: %w", err)
		}
		if err := client.DeclareTopic(cfg.Rabbit.Exchange); err != nil {
			client.Close()
			st.close()
			return nil, err
		}
		host, _ := os.Hostname()
		a.mq = client
		a.relay = broadcast.NewRelay(client, client, cfg.Rabbit.Exchange, "sync-"+host+"-"+uuid.NewString()[:8],
			cfg.Rabbit.Prefetch, a.b, logger.New("broadcast-relay"))
		sink = a.relay
		lg.Info("rabbitmq_connected", map[string]any{"host": cfg.Rabbit.Host, "exchange": cfg.Rabbit.Exchange})
	}

	a.session = session.New(st.sessions, cfg.Session.Duration, cfg.Server.StaffKey, clk, logger.New("session-registry"))
	orders, orderHandler := order.New(order.Deps{
		Repo:     st.orders,
		Sessions: a.session.Registry,
		Sink:     sink,
		Gate:     a.session.Gate,
		Clock:    clk,
		Logger:   logger.New("order-service"),
	})

	a.session.Registry.OnExpired(forwardExpiry(sink, a.b, orders))

	mux := http.NewServeMux()
	a.session.Handler.Register(mux)
	orderHandler.Register(mux)
	mux.Handle("GET /api/v1/ws", broadcast.NewHandler(a.b, a.session.Gate,
		cfg.Broadcast.WriteWait, cfg.Broadcast.PingPeriod, logger.New("broadcast-ws")))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "groups": a.b.Groups()})
	})
	a.handler = mux
	return a, nil
}

func (a *App) Handler() http.Handler { return a.handler }

type expiryObserver interface {
	OnSessionExpired(ctx context.Context, n domain.SessionExpiredNotice)
}

// forwardExpiry fans an expiry out to every instance through sink. When the
// sink fails, this instance's subscribers are still closed and the error is
// returned so the registry retries the fan-out.
func forwardExpiry(sink broadcast.Sink, b *broadcast.Broadcaster, orders expiryObserver) func(context.Context, domain.SessionExpiredNotice) error {
	return func(ctx context.Context, n domain.SessionExpiredNotice) error {
		if err := sink.PublishExpired(ctx, n); err != nil {
			b.CloseScope(n)
			return fmt.Errorf("publish expiry: %w", err)
		}
		orders.OnSessionExpired(ctx, n)
		return nil
	}
}

// Run serves until ctx is done or a component fails.
func (a *App) Run(ctx context.Context) error {
	defer a.stores.close()
	defer a.mq.Close()

	srv := httpx.New(a.cfg.Server.Addr, a.handler, httpx.Timeouts{
		Read: a.cfg.Server.ReadTimeout, Write: a.cfg.Server.WriteTimeout, Idle: a.cfg.Server.IdleTimeout,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.lg.Info("http_listening", map[string]any{"addr": a.cfg.Server.Addr})
		return srv.Run(gctx)
	})
	g.Go(func() error { return a.session.Registry.Sweep(gctx, a.cfg.Session.SweepInterval) })
	g.Go(func() error {
		<-gctx.Done()
		if n := a.b.CloseAll(); n > 0 {
			a.lg.Info("subscriptions_closed", map[string]any{"count": n})
		}
		return nil
	})
	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(gctx) })
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case err := <-a.mq.NotifyClose():
				return fmt.Errorf("rabbitmq connection closed: %v", err)
			}
		})
	}
	return g.Wait()
}
