package mtproto

import (
	"context"
	"fmt"

	"github.com/celestix/gotgproto"
	"github.com/gotd/td/tg"
)

// Authorizer runs the two RPCs of the Import-Authorization state machine
// (spec.md §4.2) against a worker's home client, satisfying
// session.Authorizer.
type Authorizer struct {
	home *gotgproto.Client
}

// NewAuthorizer binds an Authorizer to a worker's home client.
func NewAuthorizer(home *gotgproto.Client) *Authorizer {
	return &Authorizer{home: home}
}

// ExportAuthorization asks the home DC for an authorization exportable to
// dcID, the MTProto auth.exportAuthorization call.
func (a *Authorizer) ExportAuthorization(ctx context.Context, dcID int) (int64, []byte, error) {
	exported, err := a.home.API().AuthExportAuthorization(ctx, dcID)
	if err != nil {
		return 0, nil, err
	}
	return exported.ID, exported.Bytes, nil
}

// ImportAuthorization redeems an exported authorization against api, the
// connection freshly dialed to the target DC — the MTProto
// auth.importAuthorization call.
func (a *Authorizer) ImportAuthorization(ctx context.Context, api *tg.Client, id int64, bytes []byte) error {
	auth, err := api.AuthImportAuthorization(ctx, &tg.AuthImportAuthorizationRequest{ID: id, Bytes: bytes})
	if err != nil {
		return err
	}
	if _, ok := auth.(*tg.AuthAuthorization); !ok {
		return fmt.Errorf("unexpected auth.importAuthorization response %T", auth)
	}
	return nil
}
