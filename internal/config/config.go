// Package config validates and normalises the CLI knobs that reach the
// muxing core (spec §6): split policy, linking, cluster sizing, cue/lacing
// toggles, per-track overrides. Parsing of human-readable sizes uses
// bytefmt, the same library the CLI reaches for elsewhere in this
// ecosystem for "50MiB"-style flags.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"

	mkverrors "github.com/avmux/mkvmux/internal/errors"
	"github.com/avmux/mkvmux/internal/mux"
)

// CuePolicyOverride pins a specific track's cue policy, e.g. "2:all".
type CuePolicyOverride struct {
	TrackID int
	Policy  mux.CuePolicy
}

// CompressionOverride pins a specific track's compression policy.
type CompressionOverride struct {
	TrackID int
	Algo    string // "none", "zlib"; "lzo"/"bz2" parse but are rejected by Validate
}

// SyncOverride applies a fixed delay (and optional linear drift a/b) to a
// track's timecodes.
type SyncOverride struct {
	TrackID int
	DelayNs int64
	DriftA  float64
	DriftB  float64
}

// AttachmentSpec names a file on disk to attach, deferring the actual
// read (external I/O, per spec §6) to the caller.
type AttachmentSpec struct {
	Path     string
	Filename string
	MimeType string
	AllFiles bool
}

// Config is the fully-parsed, validated set of options the mux engine
// needs for one run.
type Config struct {
	Inputs  []string
	Output  string

	SplitMode  mux.SplitMode
	SplitAfter int64 // ns or bytes, per SplitMode
	SplitMaxFiles int

	Link             bool
	LinkToPrevious   string // hex/UID string, first file only
	LinkToNext       string // hex/UID string, last file only

	MaxNsPerCluster int64

	CuesEnabled        bool
	ClustersInMetaSeek bool

	LacingDisabled  bool
	TimeslicesOn    bool
	DurationsOn     bool

	DefaultTrack int

	CuePolicies   []CuePolicyOverride
	Compressions  []CompressionOverride
	SyncOverrides []SyncOverride

	// Chapters/Tags hold the CLI's trivial single chapter/tag smoke-test
	// trees (spec §6); a real deployment builds these from parsed XML
	// upstream and assigns them the same way.
	Chapters    mux.ChapterTree
	Tags        mux.TagTree
	Attachments []AttachmentSpec

	Title, MuxingApp, WritingApp string

	LogLevel string
}

// Defaults returns a Config with every spec-mandated default applied.
func Defaults() Config {
	return Config{
		SplitMode:       mux.SplitNone,
		SplitMaxFiles:   0, // 0 = unbounded
		MaxNsPerCluster: mux.DefaultMaxNsPerCluster,
		CuesEnabled:     true,
		DurationsOn:     false,
		MuxingApp:       "mkvmux",
		WritingApp:      "mkvmux",
		LogLevel:        "info",
	}
}

// ParseSplit parses the --split flag's three accepted forms: a byte size
// ("50MiB"), a clock-time duration ("01:30:00"), or a plain nanosecond
// count suffixed "ns"/"ms"/"s".
func ParseSplit(s string) (mux.SplitMode, int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return mux.SplitNone, 0, nil
	}
	if strings.Contains(s, ":") {
		d, err := parseClockDuration(s)
		if err != nil {
			return 0, 0, mkverrors.NewInvalidConfigError("split", err)
		}
		return mux.SplitByTime, d.Nanoseconds(), nil
	}
	if n, err := bytefmt.ToBytes(s); err == nil {
		return mux.SplitByBytes, int64(n), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return mux.SplitByTime, d.Nanoseconds(), nil
	}
	return 0, 0, mkverrors.NewInvalidConfigError("split", fmt.Errorf("unrecognised split value %q", s))
}

// ParseTimeSpec parses a chapter/timecode value in the same HH:MM:SS or
// plain-duration forms --split accepts, returning nanoseconds.
func ParseTimeSpec(s string) (int64, error) {
	if strings.Contains(s, ":") {
		d, err := parseClockDuration(s)
		if err != nil {
			return 0, mkverrors.NewInvalidConfigError("time", err)
		}
		return d.Nanoseconds(), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, mkverrors.NewInvalidConfigError("time", fmt.Errorf("unrecognised time value %q", s))
	}
	return d.Nanoseconds(), nil
}

func parseClockDuration(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("expected HH:MM:SS, got %q", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, fmt.Errorf("invalid HH:MM:SS value %q", s)
	}
	total := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second))
	return total, nil
}

// ParseClusterLength parses --cluster-length's "<n>" and "<n>ms" forms
// into nanoseconds. Both forms are read as milliseconds; a per-cluster
// block-count budget is not supported.
func ParseClusterLength(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "ms") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "ms"))
		if err != nil {
			return 0, mkverrors.NewInvalidConfigError("cluster-length", err)
		}
		return int64(n) * int64(time.Millisecond), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, mkverrors.NewInvalidConfigError("cluster-length", err)
	}
	return int64(n) * int64(time.Millisecond), nil
}

// Validate checks cross-field invariants and range limits, returning an
// *errors.InvalidConfigError wrapping the first violation found.
func (c *Config) Validate() error {
	if len(c.Inputs) == 0 {
		return mkverrors.NewInvalidConfigError("inputs", fmt.Errorf("at least one input is required"))
	}
	if c.Output == "" {
		return mkverrors.NewInvalidConfigError("output", fmt.Errorf("output path is required"))
	}
	if c.MaxNsPerCluster < mux.MinNsPerCluster || c.MaxNsPerCluster > mux.MaxNsPerCluster {
		return mkverrors.NewInvalidConfigError("cluster-length",
			fmt.Errorf("must be between %dms and %dms", mux.MinNsPerCluster/int64(time.Millisecond), mux.MaxNsPerCluster/int64(time.Millisecond)))
	}
	if c.SplitMaxFiles < 0 {
		return mkverrors.NewInvalidConfigError("split-max-files", fmt.Errorf("must be >= 0"))
	}
	if c.LinkToPrevious != "" && !c.Link {
		return mkverrors.NewInvalidConfigError("link-to-previous", fmt.Errorf("requires --link"))
	}
	if c.LinkToNext != "" && !c.Link {
		return mkverrors.NewInvalidConfigError("link-to-next", fmt.Errorf("requires --link"))
	}
	for _, comp := range c.Compressions {
		switch comp.Algo {
		case "none", "zlib":
		case "lzo", "bz2":
			return mkverrors.NewInvalidConfigError("compression",
				fmt.Errorf("track %d: %s compression is recognised but not implemented by this engine", comp.TrackID, comp.Algo))
		default:
			return mkverrors.NewInvalidConfigError("compression", fmt.Errorf("track %d: unknown algorithm %q", comp.TrackID, comp.Algo))
		}
	}
	return nil
}

// LinkMode derives the mux.LinkMode implied by Link (there is no separate
// "no_linking" flag — omitting --link means no_linking; see mux.LinkMode
// for what the two modes change).
func (c *Config) LinkMode() mux.LinkMode {
	if c.Link {
		return mux.LinkChained
	}
	return mux.LinkNone
}
