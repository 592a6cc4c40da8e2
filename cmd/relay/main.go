// liargame-relay is the fan-out server for live play: clients create a room,
// share its code, and every client in the room talks to the rest over one
// websocket channel. The relay carries presence and broadcasts; the game
// itself runs entirely in the clients.
package main

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

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"liargame/internal/relay"
)

const releaseVersion = "0.1.0"

func main() {
	cfg := &config{}
	cobra.CheckErr(newCmd(cfg).ExecuteContext(rootContext()))
}

func rootContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

func serve(ctx context.Context, cfg *config) error {
	level := zerolog.InfoLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	opts := relay.Options{
		IdleRoomTimeout:   cfg.roomTimeout,
		MessagesPerSecond: cfg.msgRate,
		MessageBurst:      cfg.msgBurst,
		PublicURL:         cfg.publicURL,
	}
	server := relay.NewServer(opts, releaseVersion, logger)
	defer server.Close()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       10 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", releaseVersion).Msg("relay listening")
		var err error
		if cfg.tlsCert != "" && cfg.tlsKey != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
