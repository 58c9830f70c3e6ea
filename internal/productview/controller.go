// Package productview drives the admin product table: one fetch per mount,
// projection into display rows, pagination and deletes.
package productview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/geocoder89/shopadmin/internal/domain/product"
	"github.com/geocoder89/shopadmin/internal/state"
	"github.com/google/uuid"
)

type API interface {
	ListProducts(ctx context.Context) ([]product.Record, error)
	RemoveProduct(ctx context.Context, id string) error
}

// DeleteObserver counts delete results. *observability.Prom implements it.
type DeleteObserver interface {
	ObserveDelete(result string)
}

type DeletePolicy int

const (
	// DeleteRevertOnFailure puts a row back where it was when the api refuses the delete.
	DeleteRevertOnFailure DeletePolicy = iota
	// DeleteOptimistic drops the row for good and only records a failure.
	DeleteOptimistic
)

func (p DeletePolicy) String() string {
	if p == DeleteOptimistic {
		return "optimistic"
	}
	return "revert"
}

func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "revert":
		return DeleteRevertOnFailure, nil
	case "optimistic":
		return DeleteOptimistic, nil
	default:
		return DeleteRevertOnFailure, fmt.Errorf("unknown delete policy %q", s)
	}
}

type Options struct {
	Projector product.Projector
	Policy    DeletePolicy
	Logger    *slog.Logger
	Metrics   DeleteObserver
}

type Controller struct {
	id    string
	api   API
	store *state.Store[ListState]
	opts  Options
	log   *slog.Logger

	mountOnce sync.Once
	deleteMu  sync.Mutex
	wg        sync.WaitGroup

	closeOnce sync.Once
	done      chan struct{}
}

func New(api API, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		id:    uuid.NewString(),
		api:   api,
		store: state.New(ListState{Rows: []product.DisplayRow{}}, revise),
		opts:  opts,
		log:   log,
		done:  make(chan struct{}),
	}
}

// Close marks the controller as replaced. In-flight fetches and deletes still
// finish; Close only closes Done. It is safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the controller has been replaced by a remount.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) State() ListState { return c.store.State() }

func (c *Controller) Subscribe(fn state.Listener[ListState]) func() { return c.store.Subscribe(fn) }

func (c *Controller) Policy() DeletePolicy { return c.opts.Policy }

// Mount starts the product fetch the first time it is called. Later calls do
// nothing. The fetch outlives ctx cancellation but keeps its values.
func (c *Controller) Mount(ctx context.Context) {
	c.mountOnce.Do(func() {
		c.store.Dispatch(FetchStarted{})

		fetchCtx := context.WithoutCancel(ctx)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.fetch(fetchCtx)
		}()
	})
}

func (c *Controller) fetch(ctx context.Context) {
	records, err := c.api.ListProducts(ctx)
	if err != nil {
		c.log.ErrorContext(ctx, "fetch products failed", "err", err)
		c.store.Dispatch(FetchFailed{Err: err.Error()})
		return
	}

	rows := c.opts.Projector.Project(records)
	c.log.DebugContext(ctx, "products fetched", "count", len(rows))
	c.store.Dispatch(FetchSucceeded{Rows: rows})
}

// Delete takes the row off the table right away and sends the remote removal
// without waiting for it. It reports whether a row was removed; an id not on
// the table changes nothing and sends nothing. Listeners must not call Delete.
func (c *Controller) Delete(ctx context.Context, id string) bool {
	c.deleteMu.Lock()
	wasPending := isPending(c.store.State(), id)
	removed := !wasPending && isPending(c.store.Dispatch(RowRemoved{ID: id}), id)
	c.deleteMu.Unlock()

	if !removed {
		return false
	}

	removeCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.remove(removeCtx, id)
	}()
	return true
}

func (c *Controller) remove(ctx context.Context, id string) {
	err := c.api.RemoveProduct(ctx, id)
	if err == nil {
		c.store.Dispatch(RemoveConfirmed{ID: id})
		c.observe("confirmed")
		return
	}

	revert := c.opts.Policy == DeleteRevertOnFailure
	c.log.ErrorContext(ctx, "delete product failed", "product_id", id, "policy", c.opts.Policy.String(), "err", err)
	c.store.Dispatch(RemoveFailed{ID: id, Err: err.Error(), Revert: revert})
	if revert {
		c.observe("reverted")
	} else {
		c.observe("failed")
	}
}

func (c *Controller) observe(result string) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveDelete(result)
	}
}

func isPending(s ListState, id string) bool {
	for _, p := range s.Pending {
		if p.Row.ID == id {
			return true
		}
	}
	return false
}

// View returns one page of the current table.
// View returns one page. Its Version is unique to this controller, so pages
// of a remounted view never share a version with the old one.
func (c *Controller) View(page int) Page {
	p := Paginate(c.store.State(), page)
	p.Version = c.id + "." + p.Version
	return p
}

func revise(s ListState, action state.Action) ListState {
	next := Reduce(s, action)
	next.Revision = s.Revision + 1
	return next
}

// Wait blocks until the fetch and every remote removal started so far are done.
func (c *Controller) Wait() {
	c.wg.Wait()
}
