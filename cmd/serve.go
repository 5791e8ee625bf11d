package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/resplite/internal/env"
	"github.com/luma/resplite/storage"
	"github.com/luma/resplite/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort string

	// The port to listen for RESP clients on
	port int

	reuseport    bool
	numListeners int

	// JSON backup to load before accepting clients
	restorePath string

	// Where to write a JSON backup on shutdown
	backupPath string
)

func init() {
	flags := ServeCmd.PersistentFlags()

	flags.IntVarP(&port, "port", "p", 6379, "The port to listen for client connections on")
	flags.StringVar(&httpPort, "http-port", "6380", "The port to listen to HTTP requests on")
	flags.StringVarP(&host, "host", "a", "127.0.0.1", "The host to listen on")
	flags.BoolVar(&reuseport, "reuseport", true, "Share the port between several listeners with SO_REUSEPORT")
	flags.IntVar(&numListeners, "listeners", 0, "Number of listeners when reuseport is on (default number of CPUs)")
	flags.StringVar(&restorePath, "restore", "", "Load keys from a JSON backup before serving")
	flags.StringVar(&backupPath, "backup", "", "Write keys to a JSON backup on shutdown")
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a loopback RESP server",
	Long: `Run a loopback RESP server

The server keeps keys in memory and answers PING, ECHO, SET, GET, MGET,
DEL, EXISTS, DBSIZE and QUIT. It is meant for trying out clients, not for
storing anything that matters.

Usage
	resplite serve --port 6379 --http-port 6380

`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.Debug)
		if err != nil {
			return err
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			log.Warn("Could not raise the file limit", zap.Error(err))
		} else {
			log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))
		}

		store := storage.NewInmemoryStore()
		defer func() {
			err = multierr.Append(err, store.Close())
		}()

		if restorePath != "" {
			data, err := os.ReadFile(restorePath)
			if err != nil {
				return err
			}

			if err := store.Restore(data); err != nil {
				return err
			}

			log.Info("Restored backup", zap.String("path", restorePath))
		}

		router := SetupRouter(store, conf.DebugHTTP, log.Named("http"))

		s := &http.Server{
			Addr:    net.JoinHostPort(host, httpPort),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		tcp := transport.NewTCP(transport.Options{
			Host:         host,
			Port:         port,
			Reuseport:    reuseport,
			NumListeners: numListeners,
			Trace:        conf.Trace,
			MaxFrameSize: conf.MaxFrameSize,
			Store:        store,
			Log:          log.Named("transport"),
		})

		if err := tcp.Start(ctx); err != nil {
			return multierr.Append(err, s.Close())
		}

		log.Info("Listening",
			zap.Any("config", conf),
			zap.Stringer("addr", tcp.Addr()),
			zap.String("httpAddr", s.Addr))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := tcp.Close(); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		if backupPath != "" {
			if err := writeBackup(store, backupPath); err != nil {
				return err
			}

			log.Info("Wrote backup", zap.String("path", backupPath))
		}

		log.Info("Exiting")
		return nil
	},
}

// SetupRouter builds the HTTP side of serve: /ping for liveness and
// /health, which also reports how many keys are stored.
func SetupRouter(store storage.Store, debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Logs all requests, like a combined access and error log, with RFC3339
	// UTC timestamps. Health checks are too noisy to log.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/health", func(c *gin.Context) {
		n, err := store.Len(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"keys":   n,
		})
	})

	return r
}

func writeBackup(store storage.Store, path string) error {
	data, err := store.Backup()
	if err != nil {
		return err
	}

	tmp := path + ".tmp." + strconv.Itoa(os.Getpid())
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
