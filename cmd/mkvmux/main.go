package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avmux/mkvmux/internal/config"
	mkvengine "github.com/avmux/mkvmux/internal/engine"
	mkverrors "github.com/avmux/mkvmux/internal/errors"
	"github.com/avmux/mkvmux/internal/logger"
	"github.com/avmux/mkvmux/internal/metrics"
	"github.com/avmux/mkvmux/internal/mux"
	"github.com/avmux/mkvmux/internal/mux/sources"
	"github.com/avmux/mkvmux/internal/segment"
)

func main() {
	var c cli
	parser := kong.Must(&c,
		kong.Name("mkvmux"),
		kong.Description("Mux elementary streams or existing Matroska files into a new Matroska/WebM container."),
	)
	_, parseErr := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(parseErr)

	if c.Version {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(c.LogLevel); err != nil {
		fmt.Printf("warning: invalid log level %q, using default\n", c.LogLevel)
	}
	log := logger.Logger().With("component", "cli")

	cfg, err := c.toConfig()
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(2)
	}

	os.Exit(runMux(log, cfg, c.MetricsAddr))
}

// runMux builds every component from cfg, drives the engine, and maps the
// outcome to an exit code: 0 success, 1 success with warnings, 2 fatal
// error before or during the run.
func runMux(log *slog.Logger, cfg config.Config, metricsAddr string) int {
	met := metrics.New()
	if metricsAddr != "" {
		go serveMetrics(log, met, metricsAddr)
	}

	out, err := os.Create(cfg.Output)
	if err != nil {
		log.Error("failed to create output file", "path", cfg.Output, "err", err)
		return 2
	}
	defer out.Close()

	registry := mux.NewRegistry()
	resolver := mux.NewReferenceResolver(log)
	assembler := mux.NewAssembler(registry, resolver, cfg.MaxNsPerCluster, !cfg.LacingDisabled, cfg.TimeslicesOn, log)
	scheduler := mux.NewScheduler(assembler, log)

	srcs, referenceID, err := openSources(cfg.Inputs, registry, log)
	if err != nil {
		log.Error("failed to open input sources", "err", err)
		return 2
	}
	for _, s := range srcs {
		if err := scheduler.AddSource(s); err != nil {
			log.Error("failed to add source", "err", err)
			return 2
		}
	}

	applyCueOverrides(registry, cfg.CuePolicies)

	// A Splitter is also needed purely to carry --link-to-previous/
	// --link-to-next state when linking is requested on an otherwise
	// unsplit, single-file run.
	var splitter *mux.Splitter
	if cfg.SplitMode != mux.SplitNone || cfg.Link {
		splitter = mux.NewSplitter(registry, cfg.SplitMode, cfg.SplitAfter, cfg.SplitMaxFiles, cfg.LinkMode(), referenceID, log)
		if cfg.LinkToPrevious != "" {
			u, err := parseSegmentUID(cfg.LinkToPrevious)
			if err != nil {
				log.Error("invalid --link-to-previous", "err", err)
				return 2
			}
			splitter.SetExternalPrevUID(u)
		}
		if cfg.LinkToNext != "" {
			u, err := parseSegmentUID(cfg.LinkToNext)
			if err != nil {
				log.Error("invalid --link-to-next", "err", err)
				return 2
			}
			splitter.SetExternalNextUID(u)
		}
	}

	attachments, err := loadAttachments(cfg.Attachments)
	if err != nil {
		log.Error("failed to read attachment", "err", err)
		return 2
	}

	hooks := mux.NewHookManager(log)
	_ = hooks.Register(mux.EventWarningIssued, mux.NewLogHook("cli-warnings", log))

	writer := segment.NewWriter(out, log)
	layout := segment.NewLayout(writer, segment.Options{
		MuxingApp:          cfg.MuxingApp,
		WritingApp:         cfg.WritingApp,
		Title:              cfg.Title,
		CuesEnabled:        cfg.CuesEnabled,
		ClustersInMetaSeek: cfg.ClustersInMetaSeek,
	}, log)

	e := mkvengine.New(log, met, registry, resolver, assembler, scheduler, splitter, hooks, layout, mkvengine.Config{
		Chapters:    cfg.Chapters,
		Tags:        cfg.Tags,
		Attachments: attachments,
		Splitting:   cfg.SplitMode != mux.SplitNone,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := e.Run(ctx)
	if runErr != nil {
		log.Error("mux run failed", "err", runErr)
		return 2
	}
	if len(e.Warnings()) > 0 {
		log.Warn("mux run completed with warnings", "count", len(e.Warnings()))
		return 1
	}
	log.Info("mux run completed")
	return 0
}

// openSources constructs a mux.PacketSource and registers a TrackDescriptor
// for each input, returning the sources plus the splitter's reference-track
// source id (the first video track, else the first registered track).
// "raw:<id>" creates an empty RawSource fixture (for smoke-testing the
// pipeline without a real demuxer); any other value is treated as a path
// to an existing Matroska file to remux, read back via
// sources.MatroskaSource.
func openSources(inputs []string, registry *mux.Registry, log *slog.Logger) ([]mux.PacketSource, string, error) {
	var out []mux.PacketSource
	var referenceID string
	for i, in := range inputs {
		typ := mux.TrackAudio
		if i == 0 {
			typ = mux.TrackVideo
		}

		var id string
		var src mux.PacketSource
		if sourceID, ok := strings.CutPrefix(in, "raw:"); ok {
			id = sourceID
			registry.Register(id, typ, "V_UNKNOWN")
			src = sources.NewRawSource(id, typ, "V_UNKNOWN", nil)
		} else {
			f, err := os.Open(in)
			if err != nil {
				return nil, "", mkverrors.NewSourceError(in, "open", err)
			}
			id = in
			registry.Register(id, typ, "V_MS/VFW/FOURCC")
			src = sources.NewMatroskaSource(id, f, typ, segment.TimecodeScale)
		}

		out = append(out, src)
		if typ == mux.TrackVideo && referenceID == "" {
			referenceID = id
		}
	}
	if referenceID == "" && len(inputs) > 0 {
		referenceID = out[0].Identify()
	}
	return out, referenceID, nil
}

// parseSegmentUID accepts a --link-to-previous/--link-to-next value either
// as a standard dashed UUID or as the raw 16-byte hex string mkvmerge-style
// tools use for Matroska segment UIDs.
func parseSegmentUID(s string) (uuid.UUID, error) {
	if u, err := uuid.Parse(s); err == nil {
		return u, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 16 {
		return uuid.UUID{}, fmt.Errorf("invalid segment UID %q: want a UUID or 16 raw hex bytes", s)
	}
	return uuid.FromBytes(b)
}

// loadAttachments reads the files named by --attach off disk; the engine
// itself never touches the filesystem (spec §6 keeps attachment file I/O
// external to the muxing core).
func loadAttachments(specs []config.AttachmentSpec) (mux.AttachmentSet, error) {
	var set mux.AttachmentSet
	for i, spec := range specs {
		data, err := os.ReadFile(spec.Path)
		if err != nil {
			return mux.AttachmentSet{}, mkverrors.NewSourceError(spec.Path, "read_attachment", err)
		}
		name := spec.Filename
		if name == "" {
			name = filepath.Base(spec.Path)
		}
		mime := spec.MimeType
		if mime == "" {
			mime = "application/octet-stream"
		}
		set.Items = append(set.Items, mux.Attachment{
			UID:      uint64(i) + 1,
			Filename: name,
			MimeType: mime,
			Data:     data,
			AllFiles: spec.AllFiles,
		})
	}
	return set, nil
}

func applyCueOverrides(registry *mux.Registry, overrides []config.CuePolicyOverride) {
	tracks := registry.Snapshot()
	for _, o := range overrides {
		if o.TrackID < 1 || o.TrackID > len(tracks) {
			continue
		}
		tracks[o.TrackID-1].Cues = o.Policy
	}
}

func serveMetrics(log *slog.Logger, met *metrics.Metrics, addr string) {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.HandlerFor(met.Registry(), promhttp.HandlerOpts{}))
	log.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, m); err != nil {
		log.Error("metrics server stopped", "err", err)
	}
}
