package mtproto

import (
	"context"
	"fmt"
	"sync"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/mediagate/streamgate/internal/session"
)

// Dialer opens a fresh telegram.Client against a datacenter other than a
// worker's home DC. Unlike the home connection (bootstrapped once at
// startup via gotgproto, internal/bot/workers.go::startWorker), these are
// created lazily per spec.md §4.2 and never touch gotgproto's session
// storage or update dispatcher — they exist only to run the
// Import-Authorization RPC exchange and subsequent GetFile calls.
type Dialer struct {
	apiID   int
	apiHash string
	log     *zap.Logger
}

// NewDialer builds a Dialer sharing the application credentials the home
// worker was started with.
func NewDialer(apiID int, apiHash string, log *zap.Logger) *Dialer {
	return &Dialer{apiID: apiID, apiHash: apiHash, log: log.Named("Dialer")}
}

// Dial satisfies session.Dialer.
func (d *Dialer) Dial(ctx context.Context, dcID int) (session.Transport, error) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	client := telegram.NewClient(d.apiID, d.apiHash, telegram.Options{
		DC:     dcID,
		Logger: d.log.Named(fmt.Sprintf("dc%d", dcID)),
	})

	ready := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := client.Run(ctx, func(runCtx context.Context) error {
			ready <- nil
			<-runCtx.Done()
			return nil
		})
		select {
		case ready <- err:
		default:
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			<-done
			return nil, fmt.Errorf("dial dc %d: %w", dcID, err)
		}
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	return &dcTransport{client: client, cancel: cancel, done: done}, nil
}

// dcTransport adapts a running telegram.Client into session.Transport.
type dcTransport struct {
	client *telegram.Client
	cancel context.CancelFunc
	done   chan struct{}

	stopOnce sync.Once
}

func (t *dcTransport) API() *tg.Client { return t.client.API() }

func (t *dcTransport) Stop() error {
	t.stopOnce.Do(func() {
		t.cancel()
		<-t.done
	})
	return nil
}
