package habits

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/streak/internal/models"
	"github.com/julianstephens/streak/internal/utils"
)

// runForm is swapped out in tests, which have no terminal.
var runForm = func(f *huh.Form) error { return f.Run() }

// runAddForm asks for whatever the add flags left blank.
func runAddForm(c *HabitAddCmd) error {
	colors := make([]huh.Option[string], 0, len(models.Palette))
	for _, p := range models.Palette {
		colors = append(colors, huh.NewOption(p.String(), p.String()))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Habit Name").
				Value(&c.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("habit name cannot be empty")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Color").
				Options(colors...).
				Value(&c.Color),
			huh.NewInput().
				Title("Weekdays").
				Description("Comma-separated, e.g. mon,wed,fri").
				Value(&c.Weekdays).
				Validate(func(s string) error {
					if c.Days != "" && strings.TrimSpace(s) == "" {
						return nil
					}
					wds, err := utils.ParseWeekdays(s)
					if err != nil {
						return err
					}
					if len(wds) == 0 {
						return fmt.Errorf("pick at least one weekday")
					}
					return nil
				}),
		),
	).WithTheme(huh.ThemeDracula())

	return runForm(form)
}
