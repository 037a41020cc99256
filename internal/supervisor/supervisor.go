package supervisor

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Listener is a long-running server. Serve blocks until ctx is cancelled or
// the listener fails, and must return within its own shutdown grace once ctx
// is done.
type Listener interface {
	Name() string
	Serve(ctx context.Context) error
}

// Run starts every listener and keeps them alive together: as soon as one
// returns, for any reason, the others are cancelled. Run waits for all of
// them and returns the result of the listener that returned first.
func Run(ctx context.Context, log *slog.Logger, listeners ...Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once  sync.Once
		first error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		g.Go(func() error {
			log.Info("listener starting", "listener", l.Name())
			err := l.Serve(gctx)
			once.Do(func() {
				first = err
				switch {
				case err != nil:
					log.Error("listener failed, stopping the others", "listener", l.Name(), "err", err)
				case ctx.Err() == nil:
					log.Warn("listener exited, stopping the others", "listener", l.Name())
				}
			})
			cancel()
			if err != nil {
				log.Debug("listener stopped", "listener", l.Name(), "err", err)
			} else {
				log.Info("listener stopped", "listener", l.Name())
			}
			return err
		})
	}
	_ = g.Wait()
	return first
}
