package settings

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/sweeney/gatewayctl/internal/loop"
)

// DefaultTimeout bounds a single load or push request.
const DefaultTimeout = 10 * time.Second

// API is the gateway's configuration endpoint.
type API interface {
	FetchConfig(ctx context.Context) (map[string]any, error)
	PushConfig(ctx context.Context, changes map[string]any) (map[string]any, error)
}

// Options configures a Controller. API and Exec are required.
type Options struct {
	API  API
	Exec loop.Executor

	// Apply pushes an authoritative value into the UI.
	Apply func(key string, value any)

	// Status receives short human-readable progress and failure messages.
	Status func(msg string)

	// Hooks run after a successful push that included their key.
	Hooks []Hook

	Timeout time.Duration

	// Context is the parent of every request; cancel it to abandon
	// in-flight requests on shutdown.
	Context context.Context

	// Spawn runs blocking work off the loop. Defaults to a new goroutine.
	Spawn func(func())

	Logger hclog.Logger
}

// Controller orchestrates a Store against the configuration endpoint.
// RecordEdit, Load, Push and Reset must be called on the executor; their
// done callbacks run there too. done receives nil or a *Failure.
type Controller struct {
	opts  Options
	store *Store
	log   hclog.Logger
}

// NewController creates a Controller with an empty snapshot.
func NewController(opts Options) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Spawn == nil {
		opts.Spawn = func(f func()) { go f() }
	}
	if opts.Apply == nil {
		opts.Apply = func(string, any) {}
	}
	if opts.Status == nil {
		opts.Status = func(string) {}
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Controller{opts: opts, store: NewStore(), log: opts.Logger}
}

// Snapshot returns a copy of the last accepted configuration.
func (c *Controller) Snapshot() Config {
	return c.store.Snapshot()
}

// Pending returns a copy of the unconfirmed edits.
func (c *Controller) Pending() Config {
	return c.store.Pending()
}

// RecordEdit tracks a UI change. valid=false means the field currently holds
// an invalid value; any pending entry for key is kept.
func (c *Controller) RecordEdit(key string, value any, valid bool) {
	c.store.Record(key, value, valid)
}

// Load fetches the full configuration and applies it.
func (c *Controller) Load(done func(error)) {
	c.load(c.store.Mark(), done)
}

// load fetches the configuration. Only pending entries recorded at or
// before mark are cleared when it arrives.
func (c *Controller) load(mark uint64, done func(error)) {
	c.opts.Status("Loading settings")

	c.opts.Spawn(func() {
		ctx, cancel := context.WithTimeout(c.opts.Context, c.opts.Timeout)
		defer cancel()
		cfg, err := c.opts.API.FetchConfig(ctx)
		c.opts.Exec.Post(func() { c.finishLoad(mark, cfg, err, done) })
	})
}

func (c *Controller) finishLoad(mark uint64, cfg map[string]any, err error, done func(error)) {
	if err != nil {
		f := classify("load config", err)
		c.log.Warn("load failed", "kind", f.Kind, "error", err)
		c.opts.Status("Loading settings failed: " + err.Error())
		finish(done, f)
		return
	}
	preserved := c.store.Replace(cfg, mark, nil)
	c.applyAll(preserved)
	c.opts.Status("Settings loaded")
	finish(done, nil)
}

// Push sends the pending changes. With nothing pending no request is made.
func (c *Controller) Push(done func(error)) {
	if !c.store.HasPending() {
		c.opts.Status("No changes to save")
		finish(done, nil)
		return
	}

	changes := c.store.Pending()
	keys := changes.Keys()
	previous := c.store.Snapshot()
	mark := c.store.Mark()
	c.store.Hold(keys)
	c.opts.Status("Saving settings")
	c.log.Debug("pushing changes", "keys", keys)

	c.opts.Spawn(func() {
		ctx, cancel := context.WithTimeout(c.opts.Context, c.opts.Timeout)
		resp, err := c.opts.API.PushConfig(ctx, changes)
		cancel()

		decision := Apply
		if err == nil {
			decision = c.runHooks(PushResult{Pushed: changes, Previous: previous, Response: resp})
		}
		c.opts.Exec.Post(func() { c.finishPush(mark, keys, resp, decision, err, done) })
	})
}

func (c *Controller) runHooks(r PushResult) Decision {
	decision := Apply
	for _, h := range c.opts.Hooks {
		if _, ok := r.Pushed[h.Key()]; !ok {
			continue
		}
		if d := h.AfterPush(c.opts.Context, r); d > decision {
			decision = d
		}
	}
	return decision
}

func (c *Controller) finishPush(mark uint64, keys []string, resp map[string]any, decision Decision, err error, done func(error)) {
	if err != nil {
		c.store.Release(keys)
		f := classify("push config", err)
		c.log.Warn("push failed", "kind", f.Kind, "keys", keys, "error", err)
		c.opts.Status("Saving settings failed: " + err.Error() + "; changes kept")
		finish(done, f)
		return
	}

	switch decision {
	case Abort:
		c.store.Release(keys)
		c.opts.Status("Change not confirmed; changes kept")
		finish(done, &Failure{Op: "push config", Kind: KindDeclined, Err: ErrDeclined})
	case Reload:
		c.store.Replace(resp, mark, keys)
		c.store.Release(keys)
		c.opts.Status("Settings saved, reloading")
		c.load(mark, done)
	default:
		preserved := c.store.Replace(resp, mark, keys)
		c.store.Release(keys)
		c.applyAll(preserved)
		c.opts.Status("Settings saved")
		finish(done, nil)
	}
}

// Reset discards every pending edit and reloads.
func (c *Controller) Reset(done func(error)) {
	c.store.Discard()
	c.Load(done)
}

// applyAll pushes every snapshot value to the UI except keys the user is
// still editing.
func (c *Controller) applyAll(skip []string) {
	skipped := make(map[string]bool, len(skip))
	for _, k := range skip {
		skipped[k] = true
	}
	snap := c.store.Snapshot()
	for _, k := range snap.Keys() {
		if skipped[k] {
			continue
		}
		c.opts.Apply(k, snap[k])
	}
}

func finish(done func(error), f *Failure) {
	if done == nil {
		return
	}
	if f == nil {
		done(nil)
		return
	}
	done(f)
}
