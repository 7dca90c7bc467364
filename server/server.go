package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/stepbuddy/stepvault/challenge"
	"github.com/stepbuddy/stepvault/ledger"
	"github.com/stepbuddy/stepvault/logging"
)

// Server wires the settlement core to its collaborator-facing HTTP
// surface and the metrics endpoint.
type Server struct {
	cfg   Config
	mgr   *challenge.Manager
	funds *ledger.Ledger

	apiListener     net.Listener
	metricsListener net.Listener
}

func New(ctx context.Context, cfg Config) (*Server, error) {
	// Resolve the API listener.
	addr, err := net.ResolveTCPAddr("tcp", cfg.RawAPIListener)
	if err != nil {
		return nil, err
	}
	apiListener, err := net.Listen(addr.Network(), addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	var metricsListener net.Listener
	if cfg.MetricsPort != 0 {
		metricsListener, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.MetricsPort))
		if err != nil {
			apiListener.Close()
			return nil, fmt.Errorf("failed to listen for metrics: %w", err)
		}
	}
	closeListeners := func() {
		apiListener.Close()
		if metricsListener != nil {
			metricsListener.Close()
		}
	}

	if _, err := os.Stat(cfg.DataDir); os.IsNotExist(err) {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			closeListeners()
			return nil, err
		}
	}

	funds, err := ledger.Open(filepath.Join(cfg.DbDir, "ledger"))
	if err != nil {
		closeListeners()
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	mgr, err := challenge.New(ctx, cfg.DbDir, funds, challenge.WithConfig(cfg.Challenge))
	if err != nil {
		funds.Close()
		closeListeners()
		return nil, fmt.Errorf("creating challenge manager: %w", err)
	}

	return &Server{
		cfg:             cfg,
		mgr:             mgr,
		funds:           funds,
		apiListener:     apiListener,
		metricsListener: metricsListener,
	}, nil
}

func (s *Server) Close() error {
	var result *multierror.Error
	result = multierror.Append(result, s.mgr.Close())
	result = multierror.Append(result, s.funds.Close())
	return result.ErrorOrNil()
}

// APIAddr returns the address the server is listening on for API requests.
func (s *Server) APIAddr() net.Addr {
	return s.apiListener.Addr()
}

// Start serves the API and metrics endpoints until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	serverGroup, ctx := errgroup.WithContext(ctx)

	logger := logging.FromContext(ctx)

	apiServer := &http.Server{
		Handler:      s.router(ctx),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	logger.Sugar().Infof("API server listening on %s", s.apiListener.Addr())
	serverGroup.Go(func() error {
		if err := apiServer.Serve(s.apiListener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.metricsListener != nil {
		metricsServer := &http.Server{Handler: promhttp.Handler()}
		logger.Sugar().Infof("metrics server listening on %s", s.metricsListener.Addr())
		serverGroup.Go(func() error {
			if err := metricsServer.Serve(s.metricsListener); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		serverGroup.Go(func() error {
			<-ctx.Done()
			return metricsServer.Shutdown(context.Background())
		})
	}

	serverGroup.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})

	return serverGroup.Wait()
}
