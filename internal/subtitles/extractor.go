package subtitles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/vmunix/nfosync/internal/media/ffprobe"
)

// ErrNotExtractable is returned for image-based or unknown codecs.
var ErrNotExtractable = errors.New("subtitle track is not text based")

// ErrEmptyOutput is returned when ffmpeg produced an empty file.
var ErrEmptyOutput = errors.New("extracted subtitle is empty")

// Extractor probes videos and converts text tracks to SRT.
type Extractor struct {
	prober ffprobe.Prober
	ffmpeg string
	run    ffprobe.Runner
	tmpDir string
	log    *slog.Logger
}

// Options configures an Extractor.
type Options struct {
	FFprobe string
	FFmpeg  string
	Run     ffprobe.Runner // nil uses os/exec
	TempDir string         // "" uses os.TempDir
}

// NewExtractor creates an extractor.
func NewExtractor(opts Options, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	run := opts.Run
	if run == nil {
		run = ffprobe.ExecRunner
	}
	ffmpeg := strings.TrimSpace(opts.FFmpeg)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &Extractor{
		prober: ffprobe.Prober{Binary: opts.FFprobe, Run: run},
		ffmpeg: ffmpeg,
		run:    run,
		tmpDir: opts.TempDir,
		log:    log.With("component", "subtitles"),
	}
}

// Probe lists the subtitle tracks of a video in container order.
func (e *Extractor) Probe(ctx context.Context, video string) ([]Track, error) {
	result, err := e.prober.Subtitles(ctx, video)
	if err != nil {
		return nil, err
	}

	streams := result.SubtitleStreams()
	tracks := make([]Track, 0, len(streams))
	for _, s := range streams {
		tracks = append(tracks, Track{
			Index:    s.Index,
			Codec:    s.CodecName,
			Language: s.Tag("language"),
			Title:    s.Tag("title"),
		})
	}
	return tracks, nil
}

// WithTrack converts one track to a temporary SRT file, passes its path to
// fn and removes the file afterwards, whatever fn returns.
func (e *Extractor) WithTrack(ctx context.Context, video string, track Track, fn func(path string) error) error {
	if !track.TextBased() {
		return fmt.Errorf("stream %d (%s): %w", track.Index, track.Codec, ErrNotExtractable)
	}

	tmp, err := os.CreateTemp(e.tmpDir, "nfosync-*."+track.LanguageCode()+".srt")
	if err != nil {
		return fmt.Errorf("create temp subtitle: %w", err)
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.log.Warn("failed to remove temp subtitle", "path", path, "error", err)
		}
	}()

	_, err = e.run(ctx, e.ffmpeg,
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", video,
		"-map", "0:"+strconv.Itoa(track.Index),
		"-c:s", "srt",
		path)
	if err != nil {
		return fmt.Errorf("extract stream %d: %w", track.Index, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("extract stream %d: %w", track.Index, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("extract stream %d: %w", track.Index, ErrEmptyOutput)
	}

	return fn(path)
}
