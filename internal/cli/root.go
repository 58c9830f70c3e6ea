package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/geocoder89/shopadmin/internal/config"
	"github.com/geocoder89/shopadmin/internal/observability"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ProductAPI string
	AuthAPI    string
	Timeout    time.Duration
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the adminctl command tree. Flag defaults come from
// the same environment the admin server reads.
func NewRootCommand() *cobra.Command {
	cfg := config.Load()
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "adminctl",
		Short: "Shop admin from the terminal",
		Long:  "Drives the shop admin product table and login against the Product and Auth APIs.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log upstream calls to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ProductAPI, "product-api", cfg.ProductAPIURL, "Product API base url")
	cmd.PersistentFlags().StringVar(&opts.AuthAPI, "auth-api", cfg.AuthAPIURL, "Auth API base url")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", cfg.UpstreamTimeout, "per call timeout")

	cmd.AddCommand(NewProductsCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// logger writes debug records to w when verbose, and nothing otherwise.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	if !o.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(observability.NewTraceHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
