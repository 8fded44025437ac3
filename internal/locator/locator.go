// Package locator resolves a message id to a FileLocator, the opaque
// descriptor sufficient to fetch any byte range of a file (spec.md §3, §4.1),
// and caches that mapping with a coarse wholesale sweep.
package locator

import (
	"github.com/gotd/td/tg"
)

// FileType discriminates the three FileLocator arms spec.md §3 names.
type FileType int

const (
	TypeDocument FileType = iota
	TypePhoto
	TypeChatPhoto
)

// Locator is the tagged FileLocator union. It is immutable once
// constructed (spec.md §3 invariant).
type Locator interface {
	DCID() int
	FileType() FileType
	// FileSize is 0 for Photo, per the teacher's convention that the
	// caller judges photo-ness by a zero size (internal/utils/helpers.go
	// FileFromMedia).
	FileSize() int64
}

// Document is a tg document (the common case: video, audio, generic file).
type Document struct {
	DC            int
	MediaID       int64
	AccessHash    int64
	FileReference []byte
	ThumbSize     string
	Size          int64
}

func (d *Document) DCID() int          { return d.DC }
func (d *Document) FileType() FileType { return TypeDocument }
func (d *Document) FileSize() int64    { return d.Size }

// Photo is a tg photo, served whole (no byte-range streaming; FileSize is
// always 0, mirroring the teacher's FileFromMedia photo arm).
type Photo struct {
	DC            int
	MediaID       int64
	AccessHash    int64
	FileReference []byte
	ThumbSize     string
}

func (p *Photo) DCID() int          { return p.DC }
func (p *Photo) FileType() FileType { return TypePhoto }
func (p *Photo) FileSize() int64    { return 0 }

// ChatPhoto is a chat/channel/user profile photo, addressed by volume/local
// id against the owning peer rather than by media id + file reference.
type ChatPhoto struct {
	DC             int
	VolumeID       int64
	LocalID        int
	ChatID         int64
	ChatAccessHash int64
	ThumbBig       bool
}

func (c *ChatPhoto) DCID() int          { return c.DC }
func (c *ChatPhoto) FileType() FileType { return TypeChatPhoto }
func (c *ChatPhoto) FileSize() int64    { return 0 }

// ChatPeerKind discriminates the second tagged union ChatPhoto dispatches
// on: the owning chat id's sign and the access hash's zero-ness (ported
// from custom_dl.py::_create_chat_peer).
type ChatPeerKind int

const (
	PeerUser ChatPeerKind = iota
	PeerSmallChat
	PeerChannel
)

// ChatPeerKindOf classifies a (chatID, chatAccessHash) pair exactly as the
// Python original does: positive chat ids are users; non-positive ids with
// a zero access hash are small (basic) chats; anything else is a channel
// or supergroup, whose id is then masked to its 32-bit form.
func ChatPeerKindOf(chatID, chatAccessHash int64) ChatPeerKind {
	if chatID > 0 {
		return PeerUser
	}
	if chatAccessHash == 0 {
		return PeerSmallChat
	}
	return PeerChannel
}

// InputLocation renders a Locator to the MTProto wire type the Chunk
// Fetcher sends in a GetFile call, mirroring custom_dl.py::get_location.
func InputLocation(l Locator) tg.InputFileLocationClass {
	switch v := l.(type) {
	case *Document:
		return &tg.InputDocumentFileLocation{
			ID:            v.MediaID,
			AccessHash:    v.AccessHash,
			FileReference: v.FileReference,
			ThumbSize:     v.ThumbSize,
		}
	case *Photo:
		return &tg.InputPhotoFileLocation{
			ID:            v.MediaID,
			AccessHash:    v.AccessHash,
			FileReference: v.FileReference,
			ThumbSize:     v.ThumbSize,
		}
	case *ChatPhoto:
		return &tg.InputPeerPhotoFileLocation{
			Big:      v.ThumbBig,
			Peer:     chatPeer(v.ChatID, v.ChatAccessHash),
			VolumeID: v.VolumeID,
			LocalID:  v.LocalID,
		}
	default:
		return nil
	}
}

// chatPeer builds the InputPeerClass for a ChatPhoto location, ported from
// custom_dl.py::_create_chat_peer.
func chatPeer(chatID, chatAccessHash int64) tg.InputPeerClass {
	switch ChatPeerKindOf(chatID, chatAccessHash) {
	case PeerUser:
		return &tg.InputPeerUser{UserID: chatID, AccessHash: chatAccessHash}
	case PeerSmallChat:
		return &tg.InputPeerChat{ChatID: -chatID}
	default:
		return &tg.InputPeerChannel{
			ChannelID:  chatID & 0x7FFFFFFFFFFFFFFF,
			AccessHash: chatAccessHash,
		}
	}
}
