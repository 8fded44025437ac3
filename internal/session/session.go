// Package session implements the per-datacenter Session Pool and the
// Import-Authorization state machine described in spec.md §4.2, ported
// from original_source/Thunder/utils/custom_dl.py
// (generate_media_session / _create_or_reuse_media_session /
// _create_media_session / _authenticate_session).
package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/mediagate/streamgate/internal/tgutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mediagate/streamgate/internal/gwerrors"
)

// Transport is a started, authenticated connection to one datacenter —
// the Go stand-in for pyrogram's Session(dc_id, auth_key, is_media=True).
type Transport interface {
	// API returns the RPC surface bound to this connection.
	API() *tg.Client
	// Stop tears the connection down. Safe to call once.
	Stop() error
}

// Dialer creates a fresh, already-authenticated Transport for a
// datacenter other than the worker's home DC. gotd/td performs its own
// key exchange on first connect, which stands in for pyrogram's
// Auth(dc_id).create().
type Dialer interface {
	Dial(ctx context.Context, dcID int) (Transport, error)
}

// Authorizer runs the two RPCs the Import-Authorization state machine
// needs: exporting an authorization from the home DC and importing it
// into a freshly-dialed session at the target DC.
type Authorizer interface {
	ExportAuthorization(ctx context.Context, dcID int) (id int64, bytes []byte, err error)
	ImportAuthorization(ctx context.Context, api *tg.Client, id int64, bytes []byte) error
}

// Session is a live, cached connection to one DC, returned by Pool.
type Session struct {
	dcID      int
	transport Transport
}

func (s *Session) DCID() int       { return s.dcID }
func (s *Session) API() *tg.Client { return s.transport.API() }
func (s *Session) Stop() error     { return s.transport.Stop() }

// Pool holds at most one Session per datacenter for one worker, created
// lazily and reused across requests (spec.md §4.2). Concurrent first
// requests for the same DC coalesce onto a single creation via
// singleflight — the keyed-mutex / "first creator wins, others await"
// latch spec.md §5 requires.
type Pool struct {
	homeDC      int
	home        Transport
	dialer      Dialer
	auth        Authorizer
	retryLimit  int
	settleDelay time.Duration
	log         *zap.Logger

	mu       sync.Mutex
	sessions map[int]*Session

	sf singleflight.Group
}

// NewPool builds a Pool for one worker. home is the worker's own
// already-connected transport to homeDC.
func NewPool(homeDC int, home Transport, dialer Dialer, auth Authorizer, retryLimit int, settleDelay time.Duration, log *zap.Logger) *Pool {
	return &Pool{
		homeDC:      homeDC,
		home:        home,
		dialer:      dialer,
		auth:        auth,
		retryLimit:  retryLimit,
		settleDelay: settleDelay,
		log:         log.Named("SessionPool"),
		sessions:    make(map[int]*Session),
	}
}

// SessionForDC returns the cached or newly-created Session for dcID.
func (p *Pool) SessionForDC(ctx context.Context, dcID int) (*Session, error) {
	if sess, ok := p.cached(dcID); ok {
		return sess, nil
	}

	v, err, _ := p.sf.Do(strconv.Itoa(dcID), func() (any, error) {
		if sess, ok := p.cached(dcID); ok {
			return sess, nil
		}
		sess, err := p.create(ctx, dcID)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.sessions[dcID] = sess
		p.mu.Unlock()
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (p *Pool) cached(dcID int) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[dcID]
	return s, ok
}

func (p *Pool) create(ctx context.Context, dcID int) (*Session, error) {
	if dcID == p.homeDC {
		p.log.Debug("reusing home session", zap.Int("dcID", dcID))
		return &Session{dcID: dcID, transport: p.home}, nil
	}

	p.log.Debug("dialing cross-DC session", zap.Int("dcID", dcID))
	transport, err := p.dialer.Dial(ctx, dcID)
	if err != nil {
		return nil, gwerrors.BackendUnavailable(err)
	}

	if err := p.importAuthorization(ctx, dcID, transport); err != nil {
		_ = transport.Stop()
		return nil, err
	}

	return &Session{dcID: dcID, transport: transport}, nil
}

// importAuthorization runs the Exporting → Importing → Authorized state
// machine, spec.md §4.2. AuthBytesInvalid consumes one of retryLimit
// attempts; FloodWait and other transport errors retry without consuming
// an attempt (spec.md §9 "Bounded auth retries with mixed retry budgets").
func (p *Pool) importAuthorization(ctx context.Context, dcID int, transport Transport) error {
	for attempt := 0; attempt < p.retryLimit; attempt++ {
		id, bytes, err := p.auth.ExportAuthorization(ctx, dcID)
		if err != nil {
			if d, ok := tgutil.FloodWait(err); ok {
				p.log.Warn("flood wait during export", zap.Duration("wait", d))
				sleep(ctx, d+time.Second)
				attempt--
				continue
			}
			p.log.Warn("export authorization failed, retrying", zap.Error(err))
			sleep(ctx, time.Second)
			attempt--
			continue
		}

		sleep(ctx, p.settleDelay)

		err = p.auth.ImportAuthorization(ctx, transport.API(), id, bytes)
		if err == nil {
			p.log.Info("authorization imported", zap.Int("dcID", dcID))
			return nil
		}

		if tgerr.Is(err, "AUTH_BYTES_INVALID") {
			p.log.Warn("auth bytes invalid", zap.Int("attempt", attempt+1))
			if attempt == p.retryLimit-1 {
				return gwerrors.AuthFailed(err)
			}
			continue
		}

		if d, ok := tgutil.FloodWait(err); ok {
			p.log.Warn("flood wait during import", zap.Duration("wait", d))
			sleep(ctx, d+time.Second)
			attempt--
			continue
		}

		p.log.Warn("rpc error during import, retrying", zap.Error(err))
		sleep(ctx, time.Second)
		attempt--
	}
	return gwerrors.AuthFailed(context.DeadlineExceeded)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
