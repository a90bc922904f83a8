package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmunix/nfosync/internal/subtitles"
)

var probeCmd = &cobra.Command{
	Use:   "probe <video>",
	Short: "List embedded subtitle tracks and whether they can be uploaded",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().String("ffprobe", "ffprobe", "ffprobe binary")
}

func runProbe(cmd *cobra.Command, args []string) error {
	bin, _ := cmd.Flags().GetString("ffprobe")

	ex := subtitles.NewExtractor(subtitles.Options{FFprobe: bin}, nil)
	tracks, err := ex.Probe(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("probe %s: %w", args[0], err)
	}
	printTracks(tracks)
	return nil
}

func printTracks(tracks []subtitles.Track) {
	if len(tracks) == 0 {
		fmt.Println("No subtitle tracks")
		return
	}

	fmt.Printf("  %-6s %-20s %-10s %-6s %-8s %s\n", "STREAM", "CODEC", "TAG", "LANG", "UPLOAD", "TITLE")
	fmt.Println("  " + strings.Repeat("-", 70))
	for _, t := range tracks {
		lang, mapped := subtitles.MapLanguage(t.Language)
		if !mapped {
			lang += "?"
		}
		upload := "yes"
		switch {
		case t.ImageBased():
			upload = "image"
		case !t.TextBased():
			upload = "no"
		}
		fmt.Printf("  %-6d %-20s %-10s %-6s %-8s %s\n", t.Index, t.Codec, t.Language, lang, upload, t.Title)
	}
}
