package reaper_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plattargus/detalhar/pkg/reaper"
)

func TestParseCronEveryMinute(t *testing.T) {
	expr, err := reaper.ParseCron("* * * * *")
	require.NoError(t, err)

	from := time.Date(2026, 7, 30, 10, 0, 30, 0, time.UTC)
	next := expr.Next(from)
	assert.Equal(t, time.Date(2026, 7, 30, 10, 1, 0, 0, time.UTC), next)
}

func TestParseCronHourly(t *testing.T) {
	expr, err := reaper.ParseCron("0 * * * *")
	require.NoError(t, err)

	from := time.Date(2026, 7, 30, 10, 15, 0, 0, time.UTC)
	next := expr.Next(from)
	assert.Equal(t, time.Date(2026, 7, 30, 11, 0, 0, 0, time.UTC), next)
}

func TestParseCronStepMinutes(t *testing.T) {
	expr, err := reaper.ParseCron("*/15 * * * *")
	require.NoError(t, err)

	from := time.Date(2026, 7, 30, 10, 1, 0, 0, time.UTC)
	next := expr.Next(from)
	assert.Equal(t, time.Date(2026, 7, 30, 10, 15, 0, 0, time.UTC), next)
}

func TestParseCronRejectsListSyntax(t *testing.T) {
	_, err := reaper.ParseCron("0,30 * * * *")
	require.Error(t, err)
}

func TestParseCronRejectsRangeSyntax(t *testing.T) {
	_, err := reaper.ParseCron("* * * * 1-5")
	require.Error(t, err)
}

func TestParseCronRejectsWrongFieldCount(t *testing.T) {
	_, err := reaper.ParseCron("* * *")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 5 fields")
}

func TestParseCronRejectsOutOfRangeValue(t *testing.T) {
	_, err := reaper.ParseCron("99 * * * *")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestNewDefaultsToOncePerMinute(t *testing.T) {
	r, err := reaper.New(nil, nil, "")
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestNewRejectsInvalidExpression(t *testing.T) {
	_, err := reaper.New(nil, nil, "not a cron")
	require.Error(t, err)
}
