package locator

import "testing"

func TestChatPeerKindOf(t *testing.T) {
	cases := []struct {
		chatID, accessHash int64
		want               ChatPeerKind
	}{
		{chatID: 123, accessHash: 0, want: PeerUser},
		{chatID: 123, accessHash: 999, want: PeerUser},
		{chatID: -10, accessHash: 0, want: PeerSmallChat},
		{chatID: -10, accessHash: 999, want: PeerChannel},
	}
	for _, c := range cases {
		if got := ChatPeerKindOf(c.chatID, c.accessHash); got != c.want {
			t.Errorf("ChatPeerKindOf(%d, %d) = %v, want %v", c.chatID, c.accessHash, got, c.want)
		}
	}
}

func TestInputLocationDocument(t *testing.T) {
	doc := &Document{DC: 2, MediaID: 7, AccessHash: 9, FileReference: []byte("ref"), ThumbSize: "x"}
	loc := InputLocation(doc)
	if loc == nil {
		t.Fatal("InputLocation returned nil for Document")
	}
}

func TestInputLocationChatPhotoUser(t *testing.T) {
	cp := &ChatPhoto{DC: 2, VolumeID: 1, LocalID: 2, ChatID: 555, ChatAccessHash: 777}
	loc := InputLocation(cp)
	if loc == nil {
		t.Fatal("InputLocation returned nil for ChatPhoto")
	}
}

func TestDocumentFileType(t *testing.T) {
	d := &Document{Size: 42}
	if d.FileType() != TypeDocument {
		t.Fatal("Document.FileType() != TypeDocument")
	}
	if d.FileSize() != 42 {
		t.Fatalf("FileSize() = %d, want 42", d.FileSize())
	}
}

func TestPhotoFileSizeAlwaysZero(t *testing.T) {
	p := &Photo{}
	if p.FileSize() != 0 {
		t.Fatal("Photo.FileSize() must always be 0")
	}
	if p.FileType() != TypePhoto {
		t.Fatal("Photo.FileType() != TypePhoto")
	}
}
