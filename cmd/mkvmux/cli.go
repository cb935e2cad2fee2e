package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/avmux/mkvmux/internal/config"
	"github.com/avmux/mkvmux/internal/mux"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// cli is the kong command struct for the §6 CLI surface: only the knobs
// that reach the muxing core. Chapter/tag XML parsing is out of scope;
// --chapter-title/--tag-name build a single trivial ChapterAtom/Tag for
// smoke-testing rather than a real XML parser. --attach reads a real file
// from disk, the external I/O spec §6 assigns to the caller.
type cli struct {
	Input  []string `short:"i" name:"input" help:"Input source: path to a Matroska file to remux, or raw:<source-id> for a raw elementary-stream fixture. Repeatable." required:""`
	Output string   `arg:"" name:"output" help:"Output Matroska file path." required:""`

	Split         string `help:"Splitter config: size (e.g. 50MiB), HH:MM:SS, or Ns." placeholder:"<size|HH:MM:SS|Ns>"`
	SplitMaxFiles int    `help:"Hard cap on the number of output files; 0 = unbounded."`

	Link           bool   `help:"Enable segment linking (chapter times stay on the whole chain's timeline; allows --link-to-previous/--link-to-next)."`
	LinkToPrevious string `help:"Previous segment UID (hex) for the first output file." placeholder:"<uid>"`
	LinkToNext     string `help:"Next segment UID (hex) for the output file; written only when --split is not set." placeholder:"<uid>"`

	ClusterLength string `default:"2000ms" help:"Time budget per cluster in milliseconds (a bare <n> is also read as milliseconds)." placeholder:"<n|n ms>"`

	NoCues               bool `help:"Disable cue (seek) index generation."`
	NoClustersInMetaSeek bool `help:"Omit per-cluster entries from the meta-seek head."`

	DisableLacing    bool `help:"Disable lacing (one block per packet)."`
	EnableTimeslices bool `help:"Per-lace TimeSlice request; accepted, but the muxer writes no TimeSlice elements."`
	EnableDurations  bool `help:"Request BlockDuration even when it equals the track default; accepted, but not applied by the muxer."`

	DefaultTrack int      `help:"Track id (registration order, 1-based) to flag as default; accepted, but no FlagDefault element is written." placeholder:"<tid>"`
	Cues         []string `help:"Per-track cue policy override, tid:policy (none|iframes|all)." placeholder:"<tid:policy>"`
	Compression  []string `help:"Per-track compression override, tid:algo (none|zlib); validated, but not applied to track data." placeholder:"<tid:algo>"`
	Sync         []string `help:"Per-track sync override, tid:delay_ms[,a/b]; parsed, but not applied to timecodes." placeholder:"<tid:delay[,a/b]>"`

	ChapterTitle string `help:"Title of a single smoke-test chapter to embed (real chapter XML parsing is out of scope)." placeholder:"<title>"`
	ChapterStart string `help:"Chapter start time, HH:MM:SS or Ns." placeholder:"<time>"`
	ChapterEnd   string `help:"Chapter end time, HH:MM:SS or Ns; omitted = open-ended." placeholder:"<time>"`

	TagName  string `help:"Name of a single segment-wide smoke-test tag." placeholder:"<name>"`
	TagValue string `help:"Value of the --tag-name tag." placeholder:"<value>"`

	Attach []string `help:"Attach a file: path[:name[:mime[:all]]]. Repeatable." placeholder:"<path[:name[:mime[:all]]]>"`

	Title      string `help:"Segment title."`
	MuxingApp  string `default:"mkvmux" help:"MuxingApp string."`
	WritingApp string `default:"mkvmux" help:"WritingApp string."`

	LogLevel    string `default:"info" help:"Log level: debug|info|warn|error."`
	MetricsAddr string `help:"If set, serve Prometheus metrics at this address (e.g. :9090)." placeholder:"<addr>"`

	Version bool `help:"Print version and exit."`
}

// toConfig validates and translates the parsed CLI struct into a
// config.Config, applying defaults for anything left zero-valued.
func (c *cli) toConfig() (config.Config, error) {
	cfg := config.Defaults()
	cfg.Inputs = c.Input
	cfg.Output = c.Output
	cfg.SplitMaxFiles = c.SplitMaxFiles
	cfg.Link = c.Link
	cfg.LinkToPrevious = c.LinkToPrevious
	cfg.LinkToNext = c.LinkToNext
	cfg.CuesEnabled = !c.NoCues
	cfg.ClustersInMetaSeek = !c.NoClustersInMetaSeek
	cfg.LacingDisabled = c.DisableLacing
	cfg.TimeslicesOn = c.EnableTimeslices
	cfg.DurationsOn = c.EnableDurations
	cfg.DefaultTrack = c.DefaultTrack
	cfg.Title = c.Title
	cfg.MuxingApp = c.MuxingApp
	cfg.WritingApp = c.WritingApp
	cfg.LogLevel = c.LogLevel

	if c.Split != "" {
		mode, after, err := config.ParseSplit(c.Split)
		if err != nil {
			return cfg, err
		}
		cfg.SplitMode = mode
		cfg.SplitAfter = after
	}

	if c.ClusterLength != "" {
		ns, err := config.ParseClusterLength(c.ClusterLength)
		if err != nil {
			return cfg, err
		}
		cfg.MaxNsPerCluster = ns
	}

	for _, spec := range c.Cues {
		tid, rest, err := splitTrackSpec(spec)
		if err != nil {
			return cfg, fmt.Errorf("--cues %q: %w", spec, err)
		}
		policy, err := parseCuePolicy(rest)
		if err != nil {
			return cfg, fmt.Errorf("--cues %q: %w", spec, err)
		}
		cfg.CuePolicies = append(cfg.CuePolicies, config.CuePolicyOverride{TrackID: tid, Policy: policy})
	}

	for _, spec := range c.Compression {
		tid, algo, err := splitTrackSpec(spec)
		if err != nil {
			return cfg, fmt.Errorf("--compression %q: %w", spec, err)
		}
		cfg.Compressions = append(cfg.Compressions, config.CompressionOverride{TrackID: tid, Algo: algo})
	}

	for _, spec := range c.Sync {
		tid, rest, err := splitTrackSpec(spec)
		if err != nil {
			return cfg, fmt.Errorf("--sync %q: %w", spec, err)
		}
		sync, err := parseSync(tid, rest)
		if err != nil {
			return cfg, fmt.Errorf("--sync %q: %w", spec, err)
		}
		cfg.SyncOverrides = append(cfg.SyncOverrides, sync)
	}

	if c.ChapterTitle != "" {
		chapter, err := buildChapter(c.ChapterTitle, c.ChapterStart, c.ChapterEnd)
		if err != nil {
			return cfg, err
		}
		cfg.Chapters = mux.ChapterTree{Editions: []mux.EditionEntry{{UID: 1, Chapters: []mux.ChapterAtom{chapter}}}}
	}

	if c.TagName != "" {
		cfg.Tags = mux.TagTree{Tags: []mux.Tag{{Simple: []mux.SimpleTag{{Name: c.TagName, Value: c.TagValue}}}}}
	}

	for _, spec := range c.Attach {
		a, err := parseAttachSpec(spec)
		if err != nil {
			return cfg, fmt.Errorf("--attach %q: %w", spec, err)
		}
		cfg.Attachments = append(cfg.Attachments, a)
	}

	return cfg, cfg.Validate()
}

func splitTrackSpec(spec string) (int, string, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("expected tid:value")
	}
	tid, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("invalid track id %q", parts[0])
	}
	return tid, parts[1], nil
}

// buildChapter assembles the single smoke-test ChapterAtom --chapter-title
// and friends describe.
func buildChapter(title, start, end string) (mux.ChapterAtom, error) {
	var startNs, endNs int64
	var err error
	if start != "" {
		if startNs, err = config.ParseTimeSpec(start); err != nil {
			return mux.ChapterAtom{}, fmt.Errorf("--chapter-start: %w", err)
		}
	}
	if end != "" {
		if endNs, err = config.ParseTimeSpec(end); err != nil {
			return mux.ChapterAtom{}, fmt.Errorf("--chapter-end: %w", err)
		}
	}
	return mux.ChapterAtom{
		UID:       1,
		TimeStart: startNs,
		TimeEnd:   endNs,
		Displays:  []mux.ChapterDisplay{{String: title, Language: "eng"}},
	}, nil
}

// parseAttachSpec parses --attach's path[:name[:mime[:all]]] form.
func parseAttachSpec(spec string) (config.AttachmentSpec, error) {
	parts := strings.Split(spec, ":")
	a := config.AttachmentSpec{Path: parts[0]}
	if len(parts) > 1 && parts[1] != "" {
		a.Filename = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		a.MimeType = parts[2]
	}
	if len(parts) > 3 {
		switch parts[3] {
		case "all":
			a.AllFiles = true
		case "first", "":
		default:
			return a, fmt.Errorf("unknown attachment scope %q, want all|first", parts[3])
		}
	}
	return a, nil
}

func parseCuePolicy(s string) (mux.CuePolicy, error) {
	switch s {
	case "none":
		return mux.CueNone, nil
	case "iframes":
		return mux.CueIFramesOnly, nil
	case "all":
		return mux.CueAll, nil
	default:
		return 0, fmt.Errorf("unknown cue policy %q", s)
	}
}

func parseSync(tid int, s string) (config.SyncOverride, error) {
	parts := strings.SplitN(s, ",", 2)
	delayMs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return config.SyncOverride{}, fmt.Errorf("invalid delay %q", parts[0])
	}
	out := config.SyncOverride{TrackID: tid, DelayNs: delayMs * 1_000_000}
	if len(parts) == 2 {
		ab := strings.SplitN(parts[1], "/", 2)
		if len(ab) != 2 {
			return config.SyncOverride{}, fmt.Errorf("expected a/b drift, got %q", parts[1])
		}
		a, err1 := strconv.ParseFloat(ab[0], 64)
		b, err2 := strconv.ParseFloat(ab[1], 64)
		if err1 != nil || err2 != nil {
			return config.SyncOverride{}, fmt.Errorf("invalid drift %q", parts[1])
		}
		out.DriftA, out.DriftB = a, b
	}
	return out, nil
}
