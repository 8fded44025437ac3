package bot

import (
	"fmt"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"

	"github.com/mediagate/streamgate/config"
)

// StartClient bootstraps the main bot client: the one that owns the log
// channel and, absent any worker bot tokens, also serves as worker #0.
// Same session/middleware setup as startWorker, grounded on the same
// gotgproto.NewClient call, since the main client is itself just a
// worker with a fixed, privileged role.
func StartClient(log *zap.Logger) (*gotgproto.Client, error) {
	log = log.Named("MainClient")
	var sessionType sessionMaker.SessionConstructor
	if config.ValueOf.UseSessionFile {
		sessionType = sessionMaker.SqlSession(sqlite.Open("sessions/main.session"))
	} else {
		sessionType = sessionMaker.SimpleSession()
	}

	client, err := gotgproto.NewClient(
		int(config.ValueOf.ApiID),
		config.ValueOf.ApiHash,
		gotgproto.ClientTypeBot(config.ValueOf.BotToken),
		&gotgproto.ClientOpts{
			Session:          sessionType,
			DisableCopyright: true,
			Middlewares:      GetFloodMiddleware(log),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("start main client: %w", err)
	}
	return client, nil
}
