package app

import (
	"context"
	"os/signal"
	"syscall"
)

// Serve builds the App from cfg and serves until SIGINT, SIGTERM or parent
// cancellation. It returns an error instead of calling os.Exit so deferred
// cleanup runs.
func Serve(parent context.Context, cfg Config) error {
	log := NewLogger(cfg)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		log.Error("app.init.fail", "err", err)
		return err
	}

	return a.Run(ctx)
}
