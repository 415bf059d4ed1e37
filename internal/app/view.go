package app

import (
	"context"
	"errors"
	"time"

	"github.com/overseasops/claimgrid/internal/fetch"
	"github.com/overseasops/claimgrid/internal/view"
)

// appendMaxRetries bounds the backoff retries of one scroll-append load.
const appendMaxRetries = 3

// View builds a virtualized renderer over surface, wired for infinite
// scroll: when the scroll position approaches the end of loaded rows the
// renderer triggers an append fetch (retried with backoff), and appended
// rows flow back into the renderer. The returned loader exposes the
// parked load error for inline display and dismissal.
func (e *Engine) View(surface view.Surface) (*view.Renderer, *view.Loader) {
	r := view.NewRenderer(view.Config{BufferRows: e.cfg.List.BufferRows}, surface)
	loader := view.NewLoader(func(ctx context.Context) error {
		err := e.coord.Fetch(ctx, fetch.Options{Append: true})
		if err != nil {
			if errors.Is(err, fetch.ErrSuperseded) {
				return nil
			}
			return err
		}
		rows, total := e.list.Rows()
		r.UpdateData(rows, total)
		return nil
	}, appendMaxRetries, 8*time.Second)
	r.OnNeedMore = func() {
		// LoadMore blocks through its retries; the renderer holds its
		// lock while firing, so the load runs off the scroll path.
		go loader.LoadMore(context.Background())
	}
	return r, loader
}
