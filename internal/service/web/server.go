package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"v2scrape/internal/shared/logger"
	"v2scrape/internal/shared/types"
)

// loggingListener 在 debug 级别记录每个接入的连接
type loggingListener struct {
	net.Listener
}

func (l loggingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err == nil {
		logger.Debug().Msgf("[WebServer] Connection accepted from: %s", conn.RemoteAddr())
	}
	return conn, err
}

// basicAuthMiddleware 检查 user 和 password 是否已配置。
// 如果配置了，它将强制执行 HTTP Basic Authentication。
func basicAuthMiddleware(next http.Handler, user, pass string) http.Handler {
	if user == "" || pass == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized.\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewMux 注册所有路由。/api/status 和 /ws 公开，其余需要认证 (如果配置了)。
func NewMux(cfg types.WebConf, controller RunController, hub *Hub) *http.ServeMux {
	handler := NewHandler(controller)
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", handler.HandleStatus)
	mux.Handle("/api/run", basicAuthMiddleware(http.HandlerFunc(handler.HandleRun), cfg.User, cfg.Password))
	mux.Handle("/metrics", basicAuthMiddleware(promhttp.Handler(), cfg.User, cfg.Password))
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	})
	return mux
}

// Serve 在 cfg.Port 上启动状态服务，ctx 取消时优雅关闭。Port <= 0 时直接返回。
func Serve(ctx context.Context, cfg types.WebConf, handler http.Handler) error {
	l := logger.WithComponent("Web")
	if cfg.Port <= 0 {
		l.Info().Msg("Status server is disabled (port is 0 or not set).")
		return nil
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start status server on %s: %w", addr, err)
	}
	l.Info().Str("addr", addr).Msg("Status server is listening.")

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(loggingListener{Listener: listener})
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		l.Info().Msg("Status server stopped.")
		return nil
	}
}
