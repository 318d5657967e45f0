package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hollowness-inside/hlsgrab/pkg/assemble"
	"github.com/hollowness-inside/hlsgrab/pkg/grab"
	"github.com/hollowness-inside/hlsgrab/pkg/progress"
)

func downloadCmd() *cobra.Command {
	var (
		audioURL   string
		strategy   string
		concatMode string
		limit      int
		outputDir  string
		name       string
		noMux      bool
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Download a playlist and assemble it into one file",
		Long: "Download a master or media playlist. A master playlist resolves to its\n" +
			"highest bandwidth variant and the matching audio track.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := assemble.ParseConcatMode(concatMode)
			if err != nil {
				return err
			}
			if strategy != grab.StrategyAuto {
				if _, err := assemble.ParseStrategy(strategy); err != nil {
					return err
				}
			}

			svc, log, err := setup(noMux)
			if err != nil {
				return err
			}

			req := grab.Request{
				VideoURL:   args[0],
				AudioURL:   audioURL,
				Strategy:   strategy,
				ConcatMode: mode,
				Limit:      limit,
			}
			if name != "" {
				req.BaseName = grab.SanitizeName(name)
			}

			result, err := svc.Download(cmd.Context(), req, progressSink(cmd, quiet))
			if err != nil {
				return err
			}

			file, err := grab.Save(result, outputDir)
			if err != nil {
				return err
			}
			log.Info().Str("file", file).Str("strategy", string(result.Strategy)).Msg("saved")
			fmt.Fprintln(cmd.OutOrStdout(), file)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&audioURL, "audio", "", "Separate audio playlist URL")
	flags.StringVar(&strategy, "strategy", grab.StrategyAuto, "Assembly strategy: auto, passthrough, concat or mux")
	flags.StringVar(&concatMode, "concat-mode", "", "Concat layout: auto, sequential or interleaved")
	flags.IntVar(&limit, "limit", 0, "Limit the number of segments to download")
	flags.StringVarP(&outputDir, "output", "o", ".", "Output directory")
	flags.StringVar(&name, "name", "", "Output file name without extension")
	flags.BoolVar(&noMux, "no-mux", false, "Never use ffmpeg, even when it is installed")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Do not draw a progress bar")
	return cmd
}

func segmentsCmd() *cobra.Command {
	var (
		outputDir string
		name      string
		quality   string
		merge     bool
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "segments <list-file>",
		Short: "Download a list of segment URLs into one file",
		Long: "Download the segment URLs listed one per line in list-file (\"-\" reads\n" +
			"stdin). With --merge the segments are joined by ffmpeg's concat demuxer\n" +
			"into NAME[_QUALITY]_merged.mp4; otherwise they are concatenated as is.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			urls, err := readLines(args[0])
			if err != nil {
				return err
			}

			svc, log, err := setup(true)
			if err != nil {
				return err
			}
			sink := progressSink(cmd, quiet)

			if merge {
				res, err := svc.MergeSegments(cmd.Context(), urls, outputDir, name, quality, sink)
				if err != nil {
					return err
				}
				log.Info().Int("downloaded", res.Downloaded).Int("failed", res.Failed).Msg("merged")
				fmt.Fprintln(cmd.OutOrStdout(), res.OutputFile)
				return nil
			}

			result, err := svc.DownloadSegments(cmd.Context(), urls, grab.SanitizeName(name), sink)
			if err != nil {
				return err
			}
			file, err := grab.Save(result, outputDir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), file)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&outputDir, "output", "o", ".", "Output directory")
	flags.StringVar(&name, "name", "video", "Output file name without extension")
	flags.StringVar(&quality, "quality", "", "Quality label appended to merged file names")
	flags.BoolVar(&merge, "merge", false, "Join segments with ffmpeg")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Do not draw a progress bar")
	return cmd
}

func progressSink(cmd *cobra.Command, quiet bool) progress.Sink {
	if quiet {
		return nil
	}
	return newBar(cmd.ErrOrStderr()).sink
}

func readLines(path string) ([]string, error) {
	f := os.Stdin
	if path != "-" {
		var err error
		if f, err = os.Open(path); err != nil {
			return nil, err
		}
		defer f.Close()
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
