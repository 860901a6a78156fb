package habits

import (
	"sync"
	"time"

	"github.com/julianstephens/streak/internal/catalog"
	"github.com/julianstephens/streak/internal/cli"
)

type HabitWatchCmd struct {
	Interval time.Duration `help:"How often to poll the store for changes." default:"5s"`
}

// Run prints every changeset until interrupted. Writes from other streak
// processes show up on the next poll.
func (c *HabitWatchCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	p := &changePrinter{ctx: ctx, cat: cat}
	if err := p.reload(); err != nil {
		return err
	}

	watching := len(p.names)
	sub := cat.Subscribe(p.print)
	defer sub.Unsubscribe()

	ctx.Printf("Watching %d habit(s), polling every %s. Press Ctrl+C to stop.\n",
		watching, c.Interval)
	return cat.Watch(ctx.Context(), c.Interval)
}

// changePrinter remembers habit names so removals, which carry no habit,
// can still be printed by name.
type changePrinter struct {
	ctx   *cli.Context
	cat   *catalog.Catalog
	mu    sync.Mutex
	names map[string]string
}

func (p *changePrinter) reload() error {
	seg, err := p.cat.Segments(p.ctx.Context())
	if err != nil {
		return err
	}
	p.names = make(map[string]string)
	for _, h := range append(seg.InProgress, seg.Completed...) {
		p.names[h.ID] = h.Name
	}
	return nil
}

func (p *changePrinter) print(cs catalog.Changeset) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cs.Resync {
		if err := p.reload(); err != nil {
			p.ctx.Println(cli.Warning("! missed changes, reload failed: " + err.Error()))
			return
		}
		p.ctx.Printf("! missed changes, reloaded %d habit(s)\n", len(p.names))
		return
	}

	for _, ch := range cs.Inserted {
		p.names[ch.HabitID] = ch.Habit.Name
		p.ctx.Printf("+ %s  %s\n", cli.ColorStyle(ch.Habit.Color).Render(ch.Habit.Name), ch.Segment)
	}
	for _, ch := range cs.Updated {
		p.names[ch.HabitID] = ch.Habit.Name
		name := cli.ColorStyle(ch.Habit.Color).Render(ch.Habit.Name)
		if ch.Moved() {
			p.ctx.Printf("~ %s  %s -> %s\n", name, ch.Previous, ch.Segment)
		} else {
			p.ctx.Printf("~ %s  %s\n", name, ch.Segment)
		}
	}
	for _, ch := range cs.Removed {
		name, ok := p.names[ch.HabitID]
		if !ok {
			name = shortID(ch.HabitID)
		}
		delete(p.names, ch.HabitID)
		p.ctx.Printf("- %s\n", name)
	}
}
