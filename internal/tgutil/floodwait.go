// Package tgutil holds small gotd/td error-classification helpers shared
// by the session pool and the chunk fetcher, both of which need to
// recognize a FLOOD_WAIT response and recover from it locally (spec.md
// §4.2 step 6, §4.3 "On flood-control").
package tgutil

import (
	"time"

	"github.com/gotd/td/tgerr"
)

// FloodWait reports the wait duration carried by a FLOOD_WAIT RPC error,
// if err is one.
func FloodWait(err error) (time.Duration, bool) {
	e, ok := tgerr.As(err)
	if !ok || e.Type != "FLOOD_WAIT" {
		return 0, false
	}
	return time.Duration(e.Argument) * time.Second, true
}
