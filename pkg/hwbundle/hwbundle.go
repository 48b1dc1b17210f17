// Package hwbundle derives a Mac's approximate manufacture date from its
// serial number and whether it shipped late enough for the bundled iLife and
// iWork apps.
package hwbundle

import (
	"context"
	"strings"
	"time"

	"github.com/fleetdm/munki-conditions/pkg/conditions"
	"github.com/fleetdm/munki-conditions/pkg/execcmd"
	"github.com/groob/plist"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	systemProfilerPath = "/usr/sbin/system_profiler"

	// firstHalfYears and secondHalfYears are the serial's year codes for
	// 2010 onwards. A second half code starts the week count at 27.
	firstHalfYears  = "CFHKMPRTWY"
	secondHalfYears = "DGJLNQSVXZ"
	weekCodes       = "123456789CDFGHJKLMNPQRTVWXY"
	yearBase        = 2010
	secondHalfWeek  = 27
)

// DefaultMinDate is the bundle cut-off, 2013-10-23.
var DefaultMinDate = time.Date(2013, time.October, 23, 0, 0, 0, 0, time.UTC)

type hardwareReport []struct {
	Items []struct {
		SerialNumber string `plist:"serial_number"`
	} `plist:"_items"`
}

// ManufactureDate returns the Sunday of the manufacture week encoded in a
// 12 character serial. The second result is false for older serial formats
// and unknown codes.
func ManufactureDate(serial string) (time.Time, bool) {
	if len(serial) != 12 {
		return time.Time{}, false
	}

	yearCode, weekCode := serial[3:4], serial[4:5]
	weekBase := 0
	yearIndex := strings.Index(firstHalfYears, yearCode)
	if i := strings.Index(secondHalfYears, yearCode); i >= 0 {
		yearIndex, weekBase = i, secondHalfWeek
	}
	weekIndex := strings.Index(weekCodes, weekCode)
	if yearIndex < 0 || weekIndex < 0 {
		return time.Time{}, false
	}
	return sundayOfWeek(yearBase+yearIndex, weekIndex+weekBase), true
}

// sundayOfWeek returns the Sunday of the given week of year, where weeks
// start on Monday and week 0 holds the days before the first Monday.
func sundayOfWeek(year, week int) time.Time {
	// Monday is 0.
	firstWeekday := (int(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Weekday()) + 6) % 7
	const sunday = 6

	var dayOfYear int
	if week == 0 {
		dayOfYear = 1 + sunday - firstWeekday
	} else {
		week0Length := (7 - firstWeekday) % 7
		dayOfYear = 1 + week0Length + 7*(week-1) + sunday
	}
	// time.Date normalizes day 0 and below into the previous year.
	return time.Date(year, time.January, dayOfYear, 0, 0, 0, 0, time.UTC)
}

// Result is what one run measured.
type Result struct {
	Serial          string
	ManufactureDate time.Time
	DateKnown       bool
	BundleEligible  bool
}

// Conditions returns the facts Munki sees. The manufacture date is left out
// when it could not be derived.
func (r Result) Conditions() map[string]interface{} {
	c := map[string]interface{}{
		"system_hw_bundle_oct_2013": r.BundleEligible,
	}
	if r.DateKnown {
		c["system_manufacture_date"] = r.ManufactureDate
	}
	return c
}

type Reporter struct {
	minDate time.Time
	runner  execcmd.Runner
	store   *conditions.Store
	logger  zerolog.Logger
}

// New returns a Reporter. A zero minDate uses DefaultMinDate.
func New(minDate time.Time, runner execcmd.Runner, store *conditions.Store, logger zerolog.Logger) *Reporter {
	if minDate.IsZero() {
		minDate = DefaultMinDate
	}
	return &Reporter{
		minDate: minDate,
		runner:  runner,
		store:   store,
		logger:  logger.With().Str("reporter", "hw-bundle").Logger(),
	}
}

// Serial returns the hardware serial number, or "" if system_profiler does
// not report one.
func (r *Reporter) Serial(ctx context.Context) string {
	out, err := r.runner.Output(ctx, systemProfilerPath, "SPHardwareDataType", "-xml")
	if err != nil {
		r.logger.Info().Err(err).Msg("system_profiler hardware report")
		return ""
	}
	var report hardwareReport
	if err := plist.Unmarshal(out, &report); err != nil {
		r.logger.Info().Err(err).Msg("parse hardware report")
		return ""
	}
	if len(report) == 0 || len(report[0].Items) == 0 {
		return ""
	}
	return report[0].Items[0].SerialNumber
}

// Measure reads the serial and evaluates bundle eligibility.
func (r *Reporter) Measure(ctx context.Context) Result {
	res := Result{Serial: r.Serial(ctx)}
	res.ManufactureDate, res.DateKnown = ManufactureDate(res.Serial)
	res.BundleEligible = res.DateKnown && !res.ManufactureDate.Before(r.minDate)

	ev := r.logger.Info().Str("serial", res.Serial).Bool("eligible", res.BundleEligible)
	if res.DateKnown {
		ev = ev.Time("manufacture_date", res.ManufactureDate)
	}
	ev.Msg("hardware bundle eligibility")
	return res
}

// Run measures and writes the system_* conditions.
func (r *Reporter) Run(ctx context.Context) (Result, error) {
	res := r.Measure(ctx)
	if err := r.store.Write(res.Conditions()); err != nil {
		return res, errors.Wrap(err, "write hardware bundle conditions")
	}
	return res, nil
}
