package shift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/fournil/internal/domain/models"
)

func TestResolvePrefersOverride(t *testing.T) {
	r := NewResolver(time.UTC)
	now := time.Date(2025, 3, 4, 22, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		override models.Shift
		selected models.Shift
		want     models.Shift
	}{
		{"override wins", models.ShiftNight, models.ShiftMorning, models.ShiftNight},
		{"selection used", "", models.ShiftNight, models.ShiftNight},
		{"defaults to morning late at night", "", "", models.ShiftMorning},
		{"invalid override ignored", "evening", models.ShiftNight, models.ShiftNight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := r.Resolve(now, tt.override, tt.selected)
			assert.Equal(t, tt.want, w.Shift)
			assert.Equal(t, "2025-03-04", w.Day)
		})
	}
}

func TestResolveUsesSingleLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	r := NewResolver(loc)

	// 22:30 UTC is already the next day at UTC+3.
	now := time.Date(2025, 3, 4, 22, 30, 0, 0, time.UTC)
	w := r.Resolve(now, models.ShiftMorning, "")

	assert.Equal(t, "2025-03-05", w.Day)
	assert.True(t, w.Start.Equal(time.Date(2025, 3, 5, 0, 0, 0, 0, loc)))
	assert.Equal(t, 24*time.Hour, w.End.Sub(w.Start))
	assert.True(t, w.Contains(now))
	assert.False(t, w.Contains(w.End))
	assert.True(t, w.Contains(w.Start))
}

func TestWindowForExplicitDay(t *testing.T) {
	r := NewResolver(time.UTC)

	w, err := r.Window(models.ShiftNight, "2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), w.End)

	_, err = r.Window(models.ShiftNight, "31/01/2025")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = r.Window("afternoon", "2025-01-31")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestLoadResolver(t *testing.T) {
	_, err := LoadResolver("Not/AZone")
	assert.Error(t, err)

	r, err := LoadResolver("UTC")
	require.NoError(t, err)
	assert.Equal(t, "UTC", r.Location().String())
}
