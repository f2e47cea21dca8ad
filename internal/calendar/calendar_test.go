package calendar

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticCalendar_IsHoliday(t *testing.T) {
	cal := NewStaticCalendar(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	assert.True(t, cal.IsHoliday(time.Date(2026, 1, 1, 15, 30, 0, 0, time.UTC)))
	assert.False(t, cal.IsHoliday(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestStaticCalendar_Add(t *testing.T) {
	cal := NewStaticCalendar()
	assert.False(t, cal.IsHoliday(time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)))

	cal.Add(time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC))
	assert.True(t, cal.IsHoliday(time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)))
}

func TestLoadYAMLCalendar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "holidays.yaml")
	content := `
holidays:
  - date: "2026-01-01"
    name: New Year's Day
  - date: "2026-12-25"
    name: Christmas Day
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cal, err := LoadYAMLCalendar(path)
	require.NoError(t, err)

	assert.True(t, cal.IsHoliday(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, cal.IsHoliday(time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)))
	assert.False(t, cal.IsHoliday(time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)))
}

func TestLoadYAMLCalendar_InvalidDate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("holidays:\n  - date: \"not-a-date\"\n    name: Bogus\n"), 0o644))

	_, err := LoadYAMLCalendar(path)
	assert.Error(t, err)
}
