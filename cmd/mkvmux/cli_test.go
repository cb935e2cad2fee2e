package main

import "testing"

func TestBuildChapterParsesStartAndEnd(t *testing.T) {
	c, err := buildChapter("Intro", "00:00:01", "00:00:02")
	if err != nil {
		t.Fatal(err)
	}
	if c.TimeStart != 1_000_000_000 || c.TimeEnd != 2_000_000_000 {
		t.Fatalf("got start=%d end=%d, want 1e9/2e9", c.TimeStart, c.TimeEnd)
	}
	if len(c.Displays) != 1 || c.Displays[0].String != "Intro" {
		t.Fatalf("expected a single Display titled Intro, got %+v", c.Displays)
	}
}

func TestBuildChapterOpenEndedWithoutEnd(t *testing.T) {
	c, err := buildChapter("Intro", "0s", "")
	if err != nil {
		t.Fatal(err)
	}
	if c.TimeEnd != 0 {
		t.Fatalf("expected TimeEnd 0 (open-ended) when --chapter-end is omitted, got %d", c.TimeEnd)
	}
}

func TestBuildChapterRejectsBadStart(t *testing.T) {
	if _, err := buildChapter("Intro", "garbage", ""); err == nil {
		t.Fatal("expected an error for an unparseable --chapter-start")
	}
}

func TestParseAttachSpecPathOnly(t *testing.T) {
	a, err := parseAttachSpec("cover.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if a.Path != "cover.jpg" || a.Filename != "" || a.MimeType != "" || a.AllFiles {
		t.Fatalf("got %+v, want only Path set", a)
	}
}

func TestParseAttachSpecFull(t *testing.T) {
	a, err := parseAttachSpec("cover.jpg:front.jpg:image/jpeg:all")
	if err != nil {
		t.Fatal(err)
	}
	if a.Path != "cover.jpg" || a.Filename != "front.jpg" || a.MimeType != "image/jpeg" || !a.AllFiles {
		t.Fatalf("got %+v, want all fields populated and AllFiles=true", a)
	}
}

func TestParseAttachSpecRejectsUnknownScope(t *testing.T) {
	if _, err := parseAttachSpec("cover.jpg:front.jpg:image/jpeg:everywhere"); err == nil {
		t.Fatal("expected an error for an unknown attachment scope")
	}
}

func TestToConfigBuildsChapterTagAndAttachment(t *testing.T) {
	c := cli{
		Input:        []string{"raw:v"},
		Output:       "out.mkv",
		ChapterTitle: "Intro",
		ChapterStart: "0s",
		TagName:      "ENCODER",
		TagValue:     "mkvmux",
		Attach:       []string{"cover.jpg:front.jpg"},
	}
	cfg, err := c.toConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Chapters.Editions) != 1 || len(cfg.Chapters.Editions[0].Chapters) != 1 {
		t.Fatalf("expected one edition with one chapter, got %+v", cfg.Chapters)
	}
	if len(cfg.Tags.Tags) != 1 || cfg.Tags.Tags[0].Simple[0].Name != "ENCODER" {
		t.Fatalf("expected one ENCODER tag, got %+v", cfg.Tags)
	}
	if len(cfg.Attachments) != 1 || cfg.Attachments[0].Filename != "front.jpg" {
		t.Fatalf("expected one attachment spec named front.jpg, got %+v", cfg.Attachments)
	}
}
