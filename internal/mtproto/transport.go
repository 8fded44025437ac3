package mtproto

import (
	"github.com/celestix/gotgproto"
	"github.com/gotd/td/tg"
)

// HomeTransport wraps a worker's already-running gotgproto.Client as a
// session.Transport, so session.Pool can treat the home DC the same as
// any dialed one. Stop is a no-op: the home client's lifecycle belongs to
// internal/bot, not to the session pool that merely borrows its API.
type HomeTransport struct {
	client *gotgproto.Client
}

// NewHomeTransport adapts client for use as a Pool's home transport.
func NewHomeTransport(client *gotgproto.Client) *HomeTransport {
	return &HomeTransport{client: client}
}

func (t *HomeTransport) API() *tg.Client { return t.client.API() }
func (t *HomeTransport) Stop() error     { return nil }
