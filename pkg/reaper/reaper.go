// Package reaper periodically reclaims jobs whose worker lease expired
// without the worker finishing or renewing it (§4.4: a crashed/killed
// worker leaves a job's locked_until in the past), requeuing them for
// another worker to pick up. Adapted from the teacher's
// pkg/workflow.Cron ticker-driven scheduling loop, with its
// Engine-triggering Schedule/triggerWorkflow machinery dropped — this
// domain only ever runs one fixed action (store.RequeueStale) on one
// schedule, so the generic named-schedule registry is unneeded. The cron
// parser is trimmed to the subset REAP_CRON actually needs: the 5
// standard fields plus a `*/N` step, each either `*` or a single integer.
// The teacher's @yearly/@monthly/@every shorthands and per-field
// comma-lists and dash-ranges are dropped — a reap schedule is "every
// minute" or "every N minutes/hours", never a named calendar event.
package reaper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plattargus/detalhar/pkg/core"
)

// DefaultExpression runs the reaper once a minute.
const DefaultExpression = "* * * * *"

// Reaper periodically calls Store.RequeueStale for jobs whose lease has
// expired.
type Reaper struct {
	store      core.Store
	log        *zap.SugaredLogger
	expression *CronExpression
}

// New builds a Reaper running on cronExpr (a standard 5-field cron
// expression; DefaultExpression if empty).
func New(store core.Store, log *zap.SugaredLogger, cronExpr string) (*Reaper, error) {
	if cronExpr == "" {
		cronExpr = DefaultExpression
	}
	expr, err := ParseCron(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("reaper: invalid cron expression: %w", err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reaper{store: store, log: log, expression: expr}, nil
}

// Run blocks, reclaiming stale leases on each tick of the configured
// schedule until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	next := r.expression.Next(time.Now())
	r.log.Infow("reaper starting", "next_run", next)

	for {
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			r.log.Info("reaper stopped")
			return
		case now := <-timer.C:
			r.reclaim(ctx)
			next = r.expression.Next(now)
		}
	}
}

func (r *Reaper) reclaim(ctx context.Context) {
	n, err := r.store.RequeueStale(ctx, time.Now())
	if err != nil {
		r.log.Errorw("reclaim stale leases failed", "error", err)
		return
	}
	if n > 0 {
		r.log.Infow("reclaimed stale leases", "count", n)
	}
}

// CronExpression is a parsed 5-field cron expression.
type CronExpression struct {
	minute     []int
	hour       []int
	dayOfMonth []int
	month      []int
	dayOfWeek  []int
}

// ParseCron parses a standard 5-field cron expression. Each field is `*`,
// `*/N`, or a single integer.
func ParseCron(expression string) (*CronExpression, error) {
	parts := strings.Fields(expression)
	if len(parts) != 5 {
		return nil, fmt.Errorf("expected 5 fields, got %d", len(parts))
	}

	expr := &CronExpression{}
	var err error

	if expr.minute, err = parseField(parts[0], 0, 59); err != nil {
		return nil, fmt.Errorf("minute: %w", err)
	}
	if expr.hour, err = parseField(parts[1], 0, 23); err != nil {
		return nil, fmt.Errorf("hour: %w", err)
	}
	if expr.dayOfMonth, err = parseField(parts[2], 1, 31); err != nil {
		return nil, fmt.Errorf("day of month: %w", err)
	}
	if expr.month, err = parseField(parts[3], 1, 12); err != nil {
		return nil, fmt.Errorf("month: %w", err)
	}
	if expr.dayOfWeek, err = parseField(parts[4], 0, 6); err != nil {
		return nil, fmt.Errorf("day of week: %w", err)
	}

	return expr, nil
}

func parseField(field string, min, max int) ([]int, error) {
	if field == "*" {
		return makeRange(min, max), nil
	}

	if strings.HasPrefix(field, "*/") {
		step, err := strconv.Atoi(strings.TrimPrefix(field, "*/"))
		if err != nil {
			return nil, err
		}
		if step <= 0 {
			return nil, fmt.Errorf("step must be positive, got %d", step)
		}
		values := make([]int, 0)
		for i := min; i <= max; i += step {
			values = append(values, i)
		}
		return values, nil
	}

	val, err := strconv.Atoi(field)
	if err != nil {
		return nil, fmt.Errorf("invalid field %q", field)
	}
	if val < min || val > max {
		return nil, fmt.Errorf("value %d out of range [%d, %d]", val, min, max)
	}
	return []int{val}, nil
}

func makeRange(min, max int) []int {
	values := make([]int, max-min+1)
	for i := range values {
		values[i] = min + i
	}
	return values
}

// Next returns the next time that matches the cron expression, searching
// up to one year ahead.
func (c *CronExpression) Next(from time.Time) time.Time {
	t := from.Add(time.Minute).Truncate(time.Minute)

	for i := 0; i < 366*24*60; i++ {
		if c.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (c *CronExpression) matches(t time.Time) bool {
	return contains(c.minute, t.Minute()) &&
		contains(c.hour, t.Hour()) &&
		contains(c.dayOfMonth, t.Day()) &&
		contains(c.month, int(t.Month())) &&
		contains(c.dayOfWeek, int(t.Weekday()))
}

func contains(values []int, v int) bool {
	for _, val := range values {
		if val == v {
			return true
		}
	}
	return false
}
