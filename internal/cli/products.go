package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/geocoder89/shopadmin/internal/productview"
	"github.com/geocoder89/shopadmin/internal/state"
	"github.com/geocoder89/shopadmin/internal/upstream"
	"github.com/geocoder89/shopadmin/internal/upstream/productapi"
	"github.com/spf13/cobra"
)

type ProductsOptions struct {
	*RootOptions
	Page   int
	Policy string
}

func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProductsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List and delete products",
	}
	cmd.PersistentFlags().StringVar(&opts.Policy, "delete-policy", "revert", "what a failed delete does to the table (revert|optimistic)")

	list := &cobra.Command{
		Use:           "list",
		Short:         "Print one page of the product table",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProducts(cmd, opts)
		},
	}
	list.Flags().IntVar(&opts.Page, "page", 1, "page number, starting at 1")

	del := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete products by id",
		Long: `Delete products by id.

Each row leaves the table at once and the removals are sent without waiting on
one another. The command exits non-zero when any removal fails.

Example:
  adminctl products delete 17 18`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return deleteProducts(cmd, opts, args)
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

// mountedTable fetches the product collection and waits for it to land.
func mountedTable(ctx context.Context, cmd *cobra.Command, opts *ProductsOptions) (*productview.Controller, error) {
	policy, err := productview.ParseDeletePolicy(opts.Policy)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --delete-policy", err)
	}

	api, err := productapi.New(productapi.Config{
		BaseURL: opts.ProductAPI,
		Breaker: upstream.NewBreaker(upstream.BreakerConfig{Timeout: opts.Timeout}),
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --product-api", err)
	}

	ctl := productview.New(api, productview.Options{
		Policy: policy,
		Logger: opts.logger(cmd.ErrOrStderr()),
	})
	ctl.Mount(ctx)
	ctl.Wait()

	return ctl, nil
}

func listProducts(cmd *cobra.Command, opts *ProductsOptions) error {
	if opts.Page < 1 {
		return NewExitError(ExitCommandError, "--page must be 1 or more")
	}

	out := opts.formatter(cmd)
	ctl, err := mountedTable(cmd.Context(), cmd, opts)
	if err != nil {
		return err
	}

	page := ctl.View(opts.Page)
	if page.Notice != "" {
		_ = out.Error("fetch_failed", page.Notice, ctl.State().FetchError)
		return NewExitError(ExitCommandError, "could not load products")
	}

	return out.Success(page, func(w io.Writer) error {
		return writeTable(w, page)
	})
}

func writeTable(w io.Writer, page productview.Page) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	headers := make([]string, 0, len(productview.ProductColumns))
	for _, col := range productview.ProductColumns {
		headers = append(headers, strings.ToUpper(col.Header))
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, r := range page.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.SKU, r.Name, r.Category, r.Price, r.Stock, r.DateAdded)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "Page %d of %d (%d products)\n", page.Page, page.PageCount, page.Total)
	return err
}

type deleteResult struct {
	ID     string `json:"id"`
	Result string `json:"result"` // deleted|not_found|failed
	Error  string `json:"error,omitempty"`
}

func deleteProducts(cmd *cobra.Command, opts *ProductsOptions, ids []string) error {
	out := opts.formatter(cmd)
	ctl, err := mountedTable(cmd.Context(), cmd, opts)
	if err != nil {
		return err
	}
	if msg := ctl.State().FetchError; msg != "" {
		_ = out.Error("fetch_failed", "products could not be loaded", msg)
		return NewExitError(ExitCommandError, "could not load products")
	}

	var (
		mu     sync.Mutex
		failed = map[string]string{}
	)
	unsubscribe := ctl.Subscribe(func(_ productview.ListState, action state.Action) {
		if f, ok := action.(productview.RemoveFailed); ok {
			mu.Lock()
			failed[f.ID] = f.Err
			mu.Unlock()
		}
	})
	defer unsubscribe()

	results := make([]deleteResult, 0, len(ids))
	for _, id := range ids {
		if ctl.Delete(cmd.Context(), id) {
			results = append(results, deleteResult{ID: id, Result: "deleted"})
		} else {
			results = append(results, deleteResult{ID: id, Result: "not_found"})
		}
	}
	ctl.Wait()

	anyFailed := false
	mu.Lock()
	for i := range results {
		if msg, ok := failed[results[i].ID]; ok {
			results[i].Result = "failed"
			results[i].Error = msg
			anyFailed = true
		}
	}
	mu.Unlock()

	err = out.Success(results, func(w io.Writer) error {
		for _, r := range results {
			line := fmt.Sprintf("%s\t%s", r.ID, r.Result)
			if r.Error != "" {
				line += "\t" + r.Error
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if anyFailed {
		return NewExitError(ExitFailure, "some products were not deleted")
	}
	return nil
}
