package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/hollowness-inside/hlsgrab/pkg/capture"
	"github.com/hollowness-inside/hlsgrab/pkg/hostmsg"
	"github.com/hollowness-inside/hlsgrab/pkg/server"
)

func hostCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "host [origin]",
		Short: "Run as a browser native messaging host on stdin/stdout",
		// the browser passes the calling extension's origin
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, log, err := setup(false)
			if err != nil {
				return err
			}
			h := &hostmsg.Host{
				Service:   svc,
				OutputDir: outputDir,
				Log:       log.With().Str("component", "host").Logger(),
			}
			return h.Serve(cmd.Context(), os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default ~/Downloads)")
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		addr         string
		outputDir    string
		maxDownloads int
		origins      []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the capture and download HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, log, err := setup(false)
			if err != nil {
				return err
			}
			if !verbose {
				gin.SetMode(gin.ReleaseMode)
			}

			s := server.New(svc, capture.NewRegistry(), server.Options{
				OutputDir:    outputDir,
				MaxDownloads: maxDownloads,
				AllowOrigins: origins,
			}, log.With().Str("component", "server").Logger())
			defer s.Close()

			srv := &http.Server{
				Addr:              addr,
				Handler:           s.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			log.Info().Str("addr", addr).Str("output", outputDir).Msg("server listening")

			select {
			case err := <-errc:
				return err
			case <-cmd.Context().Done():
			}

			log.Info().Msg("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", ":8080", "Listen address")
	flags.StringVarP(&outputDir, "output", "o", "downloads", "Output directory")
	flags.IntVar(&maxDownloads, "max-downloads", 1, "Downloads allowed to run at once")
	flags.StringSliceVar(&origins, "allow-origin", nil, "Allowed CORS origins (default all)")
	return cmd
}
