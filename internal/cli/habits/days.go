package habits

import (
	"time"

	errs "github.com/julianstephens/streak/internal/errors"
	"github.com/julianstephens/streak/internal/utils"
)

// DaysFlags selects challenge days either as explicit dates or as weekdays
// repeated for a number of weeks.
type DaysFlags struct {
	Days     string `help:"Comma-separated dates (YYYY-MM-DD)."`
	Weekdays string `help:"Comma-separated weekdays (mon,wed,fri or 0-6), used with --weeks."`
	Weeks    int    `help:"Number of weeks to expand --weekdays over." default:"1"`
	From     string `help:"First date for --weekdays (default: today)."`
}

func (f DaysFlags) set() bool {
	return f.Days != "" || f.Weekdays != ""
}

// resolve returns the selected dates, or nil when no day flag was given.
func (f DaysFlags) resolve(op string, today time.Time) ([]time.Time, error) {
	if f.Days != "" && f.Weekdays != "" {
		return nil, errs.InvalidInput(op, "use either --days or --weekdays, not both")
	}

	if f.Days != "" {
		days, err := utils.ParseDates(f.Days)
		if err != nil {
			return nil, errs.Wrap(errs.ErrInvalidInput, op, err)
		}
		if len(days) == 0 {
			return nil, errs.InvalidInput(op, "--days lists no dates")
		}
		return days, nil
	}

	if f.Weekdays == "" {
		return nil, nil
	}
	weekdays, err := utils.ParseWeekdays(f.Weekdays)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidInput, op, err)
	}
	if f.Weeks < 1 {
		return nil, errs.InvalidInput(op, "--weeks must be at least 1, got %d", f.Weeks)
	}
	from := today
	if f.From != "" {
		if from, err = utils.ParseDate(f.From); err != nil {
			return nil, errs.Wrap(errs.ErrInvalidInput, op, err)
		}
	}
	days := utils.ExpandWeekdays(from, weekdays, f.Weeks)
	if len(days) == 0 {
		return nil, errs.InvalidInput(op, "--weekdays %q selects no dates", f.Weekdays)
	}
	return days, nil
}

func parseReminders(op string, values []string, loc *time.Location) ([]time.Time, error) {
	times := make([]time.Time, 0, len(values))
	for _, v := range values {
		t, err := utils.ParseReminder(v, loc)
		if err != nil {
			return nil, errs.Wrap(errs.ErrInvalidInput, op, err)
		}
		times = append(times, t)
	}
	return times, nil
}
