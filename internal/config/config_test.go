package config

import (
	"testing"

	mkverrors "github.com/avmux/mkvmux/internal/errors"
	"github.com/avmux/mkvmux/internal/mux"
)

func TestParseSplitByteSize(t *testing.T) {
	mode, after, err := ParseSplit("50MiB")
	if err != nil {
		t.Fatal(err)
	}
	if mode != mux.SplitByBytes || after != 50*1024*1024 {
		t.Fatalf("got mode=%v after=%d, want SplitByBytes/%d", mode, after, 50*1024*1024)
	}
}

func TestParseSplitClockDuration(t *testing.T) {
	mode, after, err := ParseSplit("01:30:00")
	if err != nil {
		t.Fatal(err)
	}
	want := int64(90 * 60 * 1e9)
	if mode != mux.SplitByTime || after != want {
		t.Fatalf("got mode=%v after=%d, want SplitByTime/%d", mode, after, want)
	}
}

func TestParseSplitPlainDuration(t *testing.T) {
	mode, after, err := ParseSplit("5s")
	if err != nil {
		t.Fatal(err)
	}
	if mode != mux.SplitByTime || after != 5_000_000_000 {
		t.Fatalf("got mode=%v after=%d, want SplitByTime/5e9", mode, after)
	}
}

func TestParseSplitEmptyDisables(t *testing.T) {
	mode, after, err := ParseSplit("")
	if err != nil || mode != mux.SplitNone || after != 0 {
		t.Fatalf("got mode=%v after=%d err=%v, want SplitNone/0/nil", mode, after, err)
	}
}

func TestParseSplitRejectsGarbage(t *testing.T) {
	_, _, err := ParseSplit("not-a-duration")
	if err == nil {
		t.Fatal("expected an error for an unrecognised split value")
	}
	if !mkverrors.IsInvalidConfig(err) {
		t.Fatalf("expected IsInvalidConfig, got %v", err)
	}
}

func TestParseClusterLengthMilliseconds(t *testing.T) {
	ns, err := ParseClusterLength("500ms")
	if err != nil {
		t.Fatal(err)
	}
	if ns != 500_000_000 {
		t.Fatalf("got %d, want 500000000", ns)
	}
}

func TestValidateRejectsMissingInputs(t *testing.T) {
	cfg := Defaults()
	cfg.Output = "out.mkv"
	err := cfg.Validate()
	if err == nil || !mkverrors.IsInvalidConfig(err) {
		t.Fatalf("expected an invalid-config error for missing inputs, got %v", err)
	}
}

func TestValidateRejectsClusterLengthOutOfRange(t *testing.T) {
	cfg := Defaults()
	cfg.Inputs = []string{"in.mkv"}
	cfg.Output = "out.mkv"
	cfg.MaxNsPerCluster = mux.MinNsPerCluster - 1
	err := cfg.Validate()
	if err == nil || !mkverrors.IsInvalidConfig(err) {
		t.Fatalf("expected an invalid-config error for an out-of-range cluster length, got %v", err)
	}
}

func TestValidateRejectsLinkToPreviousWithoutLink(t *testing.T) {
	cfg := Defaults()
	cfg.Inputs = []string{"in.mkv"}
	cfg.Output = "out.mkv"
	cfg.LinkToPrevious = "deadbeef"
	err := cfg.Validate()
	if err == nil || !mkverrors.IsInvalidConfig(err) {
		t.Fatalf("expected --link-to-previous to require --link, got %v", err)
	}
}

func TestValidateRejectsLZOAndBZ2Compression(t *testing.T) {
	for _, algo := range []string{"lzo", "bz2"} {
		cfg := Defaults()
		cfg.Inputs = []string{"in.mkv"}
		cfg.Output = "out.mkv"
		cfg.Compressions = []CompressionOverride{{TrackID: 1, Algo: algo}}
		err := cfg.Validate()
		if err == nil || !mkverrors.IsInvalidConfig(err) {
			t.Fatalf("expected %s compression to be rejected, got %v", algo, err)
		}
	}
}

func TestValidateAcceptsZlibCompression(t *testing.T) {
	cfg := Defaults()
	cfg.Inputs = []string{"in.mkv"}
	cfg.Output = "out.mkv"
	cfg.Compressions = []CompressionOverride{{TrackID: 1, Algo: "zlib"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zlib compression should be accepted, got %v", err)
	}
}

func TestParseTimeSpecClockDuration(t *testing.T) {
	ns, err := ParseTimeSpec("00:00:01.5")
	if err != nil {
		t.Fatal(err)
	}
	if ns != 1_500_000_000 {
		t.Fatalf("got %d, want 1500000000", ns)
	}
}

func TestParseTimeSpecPlainDuration(t *testing.T) {
	ns, err := ParseTimeSpec("250ms")
	if err != nil {
		t.Fatal(err)
	}
	if ns != 250_000_000 {
		t.Fatalf("got %d, want 250000000", ns)
	}
}

func TestParseTimeSpecRejectsGarbage(t *testing.T) {
	_, err := ParseTimeSpec("not-a-time")
	if err == nil || !mkverrors.IsInvalidConfig(err) {
		t.Fatalf("expected IsInvalidConfig, got %v", err)
	}
}

func TestLinkModeDerivation(t *testing.T) {
	cfg := Defaults()
	if cfg.LinkMode() != mux.LinkNone {
		t.Fatalf("default LinkMode = %v, want LinkNone", cfg.LinkMode())
	}
	cfg.Link = true
	if cfg.LinkMode() != mux.LinkChained {
		t.Fatalf("LinkMode with Link=true = %v, want LinkChained", cfg.LinkMode())
	}
}
