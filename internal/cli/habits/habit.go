package habits

import (
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/streak/internal/catalog"
	"github.com/julianstephens/streak/internal/cli"
	"github.com/julianstephens/streak/internal/constants"
	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/models"
	"github.com/julianstephens/streak/internal/utils"
)

type HabitCmd struct {
	Add      HabitAddCmd      `cmd:"" help:"Add a new habit."`
	Edit     HabitEditCmd     `cmd:"" help:"Rename a habit or reschedule its current challenge."`
	List     HabitListCmd     `cmd:"" help:"List habits by segment."`
	Show     HabitShowCmd     `cmd:"" help:"Show a habit with its challenges."`
	Mark     HabitMarkCmd     `cmd:"" help:"Mark a scheduled day as executed."`
	Schedule HabitScheduleCmd `cmd:"" help:"Schedule a new challenge for a habit."`
	Delete   HabitDeleteCmd   `cmd:"" help:"Delete a habit and its history."`
	Watch    HabitWatchCmd    `cmd:"" help:"Stream catalog changes as they happen."`
}

type HabitAddCmd struct {
	Name        string   `arg:"" optional:"" help:"Habit name."`
	Color       string   `help:"Palette color (red, orange, yellow, green, mint, teal, cyan, blue, indigo, purple, pink)." default:"blue"`
	Remind      []string `help:"Reminder fire-time (YYYY-MM-DDTHH:MM). Repeatable."`
	Interactive bool     `short:"i" help:"Fill in the habit with a form."`
	DaysFlags   `embed:""`
}

func (c *HabitAddCmd) Run(ctx *cli.Context) error {
	const op = "habit.add"

	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}

	if c.Interactive {
		if err := runAddForm(c); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.Name) == "" {
		return errs.InvalidInput(op, "a habit name is required")
	}

	color, err := models.ParseColor(c.Color)
	if err != nil {
		return errs.Wrap(errs.ErrInvalidInput, op, err)
	}
	days, err := c.resolve(op, cat.Today())
	if err != nil {
		return err
	}
	if days == nil {
		return errs.InvalidInput(op, "choose days with --days or --weekdays")
	}
	reminders, err := parseReminders(op, c.Remind, cat.Location())
	if err != nil {
		return err
	}

	res, err := cat.Create(ctx.Context(), catalog.CreateInput{
		Name:      c.Name,
		Color:     color,
		Days:      days,
		Reminders: reminders,
	})
	if err != nil {
		return err
	}

	first := res.Habit.Challenges[0]
	ctx.Printf("Added habit %s: %d day(s) from %s to %s\n",
		cli.ColorStyle(res.Habit.Color).Render(res.Habit.Name), len(first.Days),
		utils.FormatDate(first.StartDate), utils.FormatDate(first.EndDate))
	printWarnings(ctx, res)
	return nil
}

type HabitEditCmd struct {
	Name           string   `arg:"" help:"Habit name."`
	Rename         string   `help:"New name for the habit."`
	Remind         []string `help:"Replace reminders with these fire-times (YYYY-MM-DDTHH:MM)."`
	ClearReminders bool     `help:"Remove every reminder."`
	DaysFlags      `embed:""`
}

func (c *HabitEditCmd) Run(ctx *cli.Context) error {
	const op = "habit.edit"

	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	h, err := cat.GetByName(ctx.Context(), c.Name)
	if err != nil {
		return err
	}

	var in catalog.EditInput
	if c.Rename != "" {
		in.Name = &c.Rename
	}
	if c.DaysFlags.set() {
		if in.Days, err = c.resolve(op, cat.Today()); err != nil {
			return err
		}
	}
	switch {
	case c.ClearReminders && len(c.Remind) > 0:
		return errs.InvalidInput(op, "use either --remind or --clear-reminders, not both")
	case c.ClearReminders:
		in.Reminders = []time.Time{}
	case len(c.Remind) > 0:
		if in.Reminders, err = parseReminders(op, c.Remind, cat.Location()); err != nil {
			return err
		}
	}
	if in.Name == nil && in.Days == nil && in.Reminders == nil {
		ctx.Println("No changes specified. Use --rename, --days, --weekdays or --remind.")
		return nil
	}

	res, err := cat.Edit(ctx.Context(), h.ID, in)
	if err != nil {
		return err
	}
	ctx.Printf("Updated habit %s\n", cli.ColorStyle(res.Habit.Color).Render(res.Habit.Name))
	printWarnings(ctx, res)
	return nil
}

type HabitListCmd struct {
	Segment string `help:"Which segment to list." enum:"in-progress,completed,all" default:"all"`
}

func (c *HabitListCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	seg, err := cat.Segments(ctx.Context())
	if err != nil {
		return err
	}

	today := cat.Today()
	if len(seg.InProgress)+len(seg.Completed) == 0 {
		ctx.Println("No habits found.")
		return nil
	}

	section := func(title string, habits []*models.Habit) {
		ctx.Println(cli.Header(fmt.Sprintf("%s (%d)", title, len(habits))))
		for _, h := range habits {
			ctx.Println("  " + cli.HabitLine(h, today))
		}
	}
	if c.Segment != "completed" {
		section("In progress", seg.InProgress)
	}
	if c.Segment == "all" {
		ctx.Println()
	}
	if c.Segment != "in-progress" {
		section("Completed", seg.Completed)
	}
	return nil
}

type HabitShowCmd struct {
	Name string `arg:"" help:"Habit name."`
}

func (c *HabitShowCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	h, err := cat.GetByName(ctx.Context(), c.Name)
	if err != nil {
		return err
	}

	today := cat.Today()
	p := h.Progress(today)
	ctx.Println(cli.ColorStyle(h.Color).Render(h.Name))
	ctx.Printf("  Color:    %s\n", h.Color)
	ctx.Printf("  State:    %s\n", h.State(today))
	ctx.Printf("  Progress: %s %d/%d\n", cli.ProgressBar(p, 20), p.Completed, p.Total)
	ctx.Printf("  Created:  %s\n", h.CreatedAt.In(cat.Location()).Format("2006-01-02 15:04"))

	for _, ch := range h.Challenges {
		label := "ended"
		switch {
		case ch.IsCurrent(today):
			label = "current"
		case ch.IsUpcoming(today):
			label = "upcoming"
		}
		ctx.Printf("\n  Challenge %s  %s to %s  (%s, %d/%d executed)\n", shortID(ch.ID),
			utils.FormatDate(ch.StartDate), utils.FormatDate(ch.EndDate), label, ch.ExecutedCount(), len(ch.Days))
		for _, d := range ch.Days {
			ctx.Println("    " + cli.DayMark(d, today))
		}
	}

	if len(h.Reminders) > 0 {
		ctx.Println("\n  Reminders:")
		for _, r := range h.Reminders {
			ctx.Printf("    %s\n", r.In(cat.Location()).Format(constants.ReminderFormat))
		}
	}
	return nil
}

type HabitMarkCmd struct {
	Name string `arg:"" help:"Habit name."`
	Date string `help:"Date in YYYY-MM-DD format (default: today)."`
	Undo bool   `help:"Clear the executed mark instead."`
}

func (c *HabitMarkCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	h, err := cat.GetByName(ctx.Context(), c.Name)
	if err != nil {
		return err
	}

	date := cat.Today()
	if c.Date != "" {
		if date, err = utils.ParseDate(c.Date); err != nil {
			return errs.Wrap(errs.ErrInvalidInput, "habit.mark", err)
		}
	}

	verb := "Marked"
	if c.Undo {
		verb = "Unmarked"
		h, err = cat.UnmarkExecuted(ctx.Context(), h.ID, date)
	} else {
		h, err = cat.MarkExecuted(ctx.Context(), h.ID, date)
	}
	if err != nil {
		return err
	}

	p := h.Progress(cat.Today())
	ctx.Printf("%s %s for %s (%d/%d)\n", verb, cli.ColorStyle(h.Color).Render(h.Name), utils.FormatDate(date), p.Completed, p.Total)
	return nil
}

type HabitScheduleCmd struct {
	Name      string `arg:"" help:"Habit name."`
	DaysFlags `embed:""`
}

func (c *HabitScheduleCmd) Run(ctx *cli.Context) error {
	const op = "habit.schedule"

	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	h, err := cat.GetByName(ctx.Context(), c.Name)
	if err != nil {
		return err
	}
	days, err := c.resolve(op, cat.Today())
	if err != nil {
		return err
	}
	if days == nil {
		return errs.InvalidInput(op, "choose days with --days or --weekdays")
	}

	if h, err = cat.ScheduleChallenge(ctx.Context(), h.ID, days); err != nil {
		return err
	}
	ctx.Printf("Scheduled a new challenge for %s (%d challenge(s) total)\n",
		cli.ColorStyle(h.Color).Render(h.Name), len(h.Challenges))
	return nil
}

type HabitDeleteCmd struct {
	Name string `arg:"" help:"Habit name."`
}

func (c *HabitDeleteCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	h, err := cat.GetByName(ctx.Context(), c.Name)
	if err != nil {
		return err
	}

	ctx.PerformAutomaticBackup()
	if err := cat.DeleteHabit(ctx.Context(), h.ID); err != nil {
		return err
	}
	ctx.Printf("Deleted habit %s\n", h.Name)
	return nil
}

func printWarnings(ctx *cli.Context, res *catalog.Result) {
	for _, w := range res.Warnings {
		ctx.Println(cli.Warning("Warning: " + w.Error()))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
