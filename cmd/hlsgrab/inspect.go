package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hollowness-inside/hlsgrab/pkg/capture"
	"github.com/hollowness-inside/hlsgrab/pkg/grab"
	"github.com/hollowness-inside/hlsgrab/pkg/m3u8"
)

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <url>...",
		Short: "Tell whether URLs name playlists, direct videos or neither",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, url := range args {
				kind := m3u8.Classify(url)
				role := "-"
				if kind == m3u8.MediaKindPlaylist {
					role = string(capture.GuessKind(url))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", kind, role, url)
			}
			return w.Flush()
		},
	}
}

func inspectCmd() *cobra.Command {
	var (
		export    string
		cacheFile string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <url>",
		Short: "Download and describe a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, log, err := setup(true)
			if err != nil {
				return err
			}

			var doc *m3u8.Document
			if cacheFile != "" {
				if doc, err = grab.LoadDocument(cacheFile); err == nil {
					log.Debug().Str("cache", cacheFile).Msg("loaded playlist from cache")
				}
			}
			if doc == nil {
				if doc, err = svc.Inspect(cmd.Context(), args[0]); err != nil {
					return err
				}
				if cacheFile != "" {
					if err := grab.SaveDocument(cacheFile, doc); err != nil {
						log.Warn().Err(err).Msg("failed to cache playlist")
					}
				}
			}

			if export != "" {
				data, err := doc.Encode()
				if err != nil {
					return err
				}
				if err := os.WriteFile(export, data, 0o644); err != nil {
					return fmt.Errorf("failed to export playlist: %w", err)
				}
				log.Info().Str("file", export).Msg("playlist exported")
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			}
			return describe(cmd.OutOrStdout(), doc)
		},
	}

	cmd.Flags().StringVar(&export, "export", "", "Write the playlist with absolute URLs to this file")
	cmd.Flags().StringVar(&cacheFile, "cache", "", "Path to cache the parsed playlist")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the parsed playlist as JSON")
	return cmd
}

func describe(out io.Writer, doc *m3u8.Document) error {
	fmt.Fprintf(out, "%s playlist (%s)\n", doc.Kind, doc.Rule)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	if doc.Master != nil {
		fmt.Fprintln(w, "\nQUALITY\tBANDWIDTH\tRESOLUTION\tAUDIO\tURL")
		for _, v := range doc.Master.Variants {
			res := "-"
			if v.Resolution != nil {
				res = v.Resolution.String()
			}
			fmt.Fprintf(w, "%s\t%s/s\t%s\t%s\t%s\n",
				v.QualityLabel, humanize.SI(float64(v.Bandwidth), "b"), res, v.AudioGroupID, v.URL)
		}
		if len(doc.Master.AudioTracks) > 0 {
			fmt.Fprintln(w, "\nAUDIO TRACK\tGROUP\tURL")
			for _, a := range doc.Master.AudioTracks {
				fmt.Fprintf(w, "%s\t%s\t%s\n", a.Label(), a.GroupID, a.URI)
			}
		}
	}

	if doc.Media != nil {
		total := time.Duration(doc.Media.TotalDuration * float64(time.Second)).Round(time.Second)
		fmt.Fprintf(w, "%d segments, %s\n", len(doc.Media.Segments), total)
	}
	return w.Flush()
}
