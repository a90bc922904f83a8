// Package subtitles extracts embedded text subtitle tracks from video files.
package subtitles

import "strings"

var textCodecs = map[string]bool{
	"subrip": true, "srt": true, "ass": true, "ssa": true, "webvtt": true,
	"mov_text": true, "text": true, "ttml": true, "microdvd": true,
	"subviewer": true, "subviewer1": true, "realtext": true, "sami": true,
	"jacosub": true, "mpl2": true, "pjs": true, "stl": true, "vplayer": true,
	"eia_608": true,
}

var imageCodecs = map[string]bool{
	"hdmv_pgs_subtitle": true, "pgs": true, "hdmv_pgs": true,
	"dvd_subtitle": true, "dvdsub": true, "vobsub": true,
	"dvb_subtitle": true, "dvb_teletext": true, "xsub": true,
}

// Track is one embedded subtitle stream.
type Track struct {
	Index    int    // absolute stream index in the container
	Codec    string // ffprobe codec_name
	Language string // raw language tag, may be empty
	Title    string
}

// TextBased reports whether the track can be converted to SRT.
// Image-based and unknown codecs cannot.
func (t Track) TextBased() bool {
	return textCodecs[strings.ToLower(t.Codec)]
}

// ImageBased reports whether the track is a bitmap subtitle format.
func (t Track) ImageBased() bool {
	return imageCodecs[strings.ToLower(t.Codec)]
}

// LanguageCode returns the ISO 639-1 code for the track.
func (t Track) LanguageCode() string {
	code, _ := MapLanguage(t.Language)
	return code
}
