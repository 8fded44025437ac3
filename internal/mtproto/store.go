// Package mtproto binds the collaborator interfaces internal/locator,
// internal/session, and internal/fetcher each define on the consumer side
// (MsgStore, Dialer, Authorizer, fetcher.API) to gotd/td and gotgproto,
// the way teacher's internal/utils/helpers.go binds GetTGMessage /
// FileFromMedia / GetChannelPeer directly against *gotgproto.Client.
package mtproto

import (
	"context"
	"errors"
	"fmt"

	"github.com/celestix/gotgproto"
	"github.com/gotd/td/constant"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/mediagate/streamgate/internal/gwerrors"
	"github.com/mediagate/streamgate/internal/locator"
)

// Store resolves message ids in one store channel to Locators, bound to a
// single gotgproto.Client (the home worker that owns the channel).
// Grounded on custom_dl.py::get_file_properties/generate_file_properties
// and teacher's FileFromMessageAndChannel/FileFromMedia.
type Store struct {
	client *gotgproto.Client
	log    *zap.Logger
}

// NewStore builds a Store bound to client.
func NewStore(client *gotgproto.Client, log *zap.Logger) *Store {
	return &Store{client: client, log: log.Named("MsgStore")}
}

// GetFileIDs resolves messageID within channelID to a Locator, satisfying
// locator.MsgStore.
func (s *Store) GetFileIDs(ctx context.Context, channelID int64, messageID int64) (locator.Locator, error) {
	channel, err := s.channelPeer(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("resolve channel peer: %w", err)
	}

	req := tg.ChannelsGetMessagesRequest{
		Channel: channel,
		ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: int(messageID)}},
	}
	res, err := s.client.API().ChannelsGetMessages(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	messages, ok := res.(*tg.MessagesChannelMessages)
	if !ok || len(messages.Messages) == 0 {
		return nil, gwerrors.NotFound("message %d not found in channel %d", messageID, channelID)
	}

	message, ok := messages.Messages[0].(*tg.Message)
	if !ok {
		return nil, gwerrors.NotFound("message %d was deleted or is inaccessible", messageID)
	}

	return locatorFromMedia(message.Media)
}

// locatorFromMedia classifies a message's media into a Locator, ported
// from teacher's FileFromMedia (internal/utils/helpers.go), generalized
// to return a locator.Locator instead of the teacher's flat *types.File.
func locatorFromMedia(media tg.MessageMediaClass) (locator.Locator, error) {
	switch m := media.(type) {
	case *tg.MessageMediaDocument:
		document, ok := m.Document.AsNotEmpty()
		if !ok {
			return nil, fmt.Errorf("empty document in media")
		}
		var thumbSize string
		return &locator.Document{
			DC:            document.DCID,
			MediaID:       document.ID,
			AccessHash:    document.AccessHash,
			FileReference: document.FileReference,
			ThumbSize:     thumbSize,
			Size:          document.Size,
		}, nil
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.AsNotEmpty()
		if !ok {
			return nil, fmt.Errorf("empty photo in media")
		}
		sizes := photo.Sizes
		if len(sizes) == 0 {
			return nil, errors.New("photo has no sizes")
		}
		largest, ok := sizes[len(sizes)-1].AsNotEmpty()
		if !ok {
			return nil, errors.New("largest photo size is empty")
		}
		return &locator.Photo{
			DC:            photo.DCID,
			MediaID:       photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     largest.GetType(),
		}, nil
	default:
		return nil, gwerrors.NotFound("unsupported media type %T", media)
	}
}

// channelPeer resolves channelID to an *tg.InputChannel, consulting
// gotgproto's PeerStorage first the way teacher's GetChannelPeer does.
func (s *Store) channelPeer(ctx context.Context, channelID int64) (*tg.InputChannel, error) {
	var botAPIID constant.TDLibPeerID
	botAPIID.Channel(channelID)

	switch peer := s.client.PeerStorage.GetInputPeerById(int64(botAPIID)).(type) {
	case *tg.InputPeerChannel:
		return &tg.InputChannel{ChannelID: peer.ChannelID, AccessHash: peer.AccessHash}, nil
	case *tg.InputPeerEmpty:
		// fall through to API lookup
	default:
		return nil, fmt.Errorf("unexpected peer storage entry %T for channel %d", peer, channelID)
	}

	chats, err := s.client.API().ChannelsGetChannels(ctx, []tg.InputChannelClass{&tg.InputChannel{ChannelID: channelID}})
	if err != nil {
		return nil, err
	}
	if len(chats.GetChats()) == 0 {
		return nil, fmt.Errorf("channel %d not found", channelID)
	}
	channel, ok := chats.GetChats()[0].(*tg.Channel)
	if !ok {
		return nil, fmt.Errorf("unexpected chat type %T for channel %d", chats.GetChats()[0], channelID)
	}
	return &tg.InputChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}, nil
}
