package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Notifier is implemented by storage.PostgresBackend.
type Notifier interface {
	PgxPool() *pgxpool.Pool
	ListenChannel() string
}

// ListenAndRefresh holds a LISTEN on channel and refreshes t on every
// notification until ctx ends. Lost connections are re-established after a
// jittered backoff.
func ListenAndRefresh(ctx context.Context, st Notifier, t Target, channel string, baseBackoff, window time.Duration) {
	if channel == "" {
		channel = st.ListenChannel()
	}
	pings := make(chan struct{}, 1)
	go debounce(ctx, pings, window, func() { t.notify(ctx, "postgres") })

	for ctx.Err() == nil {
		err := listenOnce(ctx, st.PgxPool(), channel, func() {
			t.invalidate()
			poke(pings)
		})
		if ctx.Err() != nil {
			break
		}
		backoff := jitter(baseBackoff)
		log.Error().Err(err).Dur("retry_in", backoff).Str("channel", channel).Msg("listen error")
		if !sleep(ctx, backoff) {
			break
		}
		// anything may have changed while disconnected
		t.invalidate()
		poke(pings)
	}
	log.Info().Msg("listener stopped")
}

func listenOnce(ctx context.Context, pool *pgxpool.Pool, channel string, onNotify func()) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn for listen: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Info().Str("channel", channel).Msg("listening for DB changes")

	for {
		ntf, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("notify wait: %w", err)
		}
		log.Debug().Str("channel", ntf.Channel).Str("payload", ntf.Payload).Msg("db change")
		onNotify()
	}
}
