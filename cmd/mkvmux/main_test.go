package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/avmux/mkvmux/internal/config"
)

func TestParseSegmentUIDAcceptsDashedUUID(t *testing.T) {
	u, err := parseSegmentUID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if err != nil {
		t.Fatal(err)
	}
	if u.String() != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Fatalf("got %v", u)
	}
}

func TestParseSegmentUIDAcceptsRawHex(t *testing.T) {
	if _, err := parseSegmentUID("00112233445566778899aabbccddeeff"[:32]); err != nil {
		t.Fatal(err)
	}
}

func TestParseSegmentUIDRejectsGarbage(t *testing.T) {
	if _, err := parseSegmentUID("not-a-uid"); err == nil {
		t.Fatal("expected an error for a garbage segment UID")
	}
}

func TestLoadAttachmentsReadsFileAndDefaultsMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cover.jpg")
	if err := os.WriteFile(path, []byte{0xff, 0xd8}, 0o644); err != nil {
		t.Fatal(err)
	}
	set, err := loadAttachments([]config.AttachmentSpec{{Path: path}})
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Items) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(set.Items))
	}
	a := set.Items[0]
	if a.Filename != "cover.jpg" || a.MimeType != "application/octet-stream" || a.UID != 1 {
		t.Fatalf("got %+v, want defaulted filename/mimetype and UID 1", a)
	}
}

func TestLoadAttachmentsSurfacesMissingFile(t *testing.T) {
	if _, err := loadAttachments([]config.AttachmentSpec{{Path: "/nonexistent/cover.jpg"}}); err == nil {
		t.Fatal("expected an error for a missing attachment file")
	}
}
