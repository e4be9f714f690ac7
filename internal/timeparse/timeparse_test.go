package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"hours and minutes abbreviated", "2 hrs 15 mins", 135},
		{"hours and minutes with connector", "1 hour and 30 minutes", 90},
		{"comma connector", "1 hour, 5 minutes", 65},
		{"decimal hours", "0.75 hours", 45},
		{"decimal hours over one", "1.5 hours", 90},
		{"compact", "1h30m", 90},
		{"compact hours only", "3h", 180},
		{"minutes only", "45 min", 45},
		{"minutes above an hour", "90 minutes", 90},
		{"case insensitive", "2 HOURS", 120},
		{"embedded in prose", "Estimated time: about 2 hrs 15 mins for this job.", 135},
		{"range keeps upper bound", "2-3 hours", 180},
		{"range with to", "30 to 45 minutes", 45},
		{"idiom half an hour", "half an hour", 30},
		{"idiom an hour and a half", "An hour and a half", 90},
		{"idiom an hour", "about an hour", 60},
		{"clock", "1:45", 105},
		{"scheduling decimal", "1.30", 90},
		{"scheduling decimal in prose", "Answer: 0.45", 45},
		{"fraction above 59 is decimal hours", "1.75", 105},
		{"bare integer", "2", 120},
		{"bare single digit fraction", "1.5", 90},
		{"minutes rounded half up", "2.5 mins", 3},
		{"second hours component ignored", "2 hours then 3 hours", 120},
		{"minutes before hours not combined", "10 minutes and 2 hours", 10},
		{"abbreviation with period", "1 hr. 30 min", 90},
		{"plural abbreviation with period", "2 hrs. 15 mins", 135},
		{"range across units", "30 minutes to 1 hour", 60},
		{"range across units with dash", "45 mins - 1 hr 15 mins", 75},
		{"hyphenated range is not negative", "about 2-3 hours", 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Minutes)
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("   ")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse("it depends on the customer")
	assert.ErrorIs(t, err, ErrNoDuration)

	for _, in := range []string{"-2 hours", "about -30 minutes", "-1.30", "-2"} {
		_, err = Parse(in)
		assert.ErrorIs(t, err, ErrNoDuration, in)
	}

	for _, in := range []string{"307445740 minutes", "5124095.7 hours", "99999999999999999999"} {
		_, err = Parse(in)
		assert.ErrorIs(t, err, ErrOutOfBounds, in)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.30", Duration{Minutes: 90}.Format())
	assert.Equal(t, "0.45", Duration{Minutes: 45}.Format())
	assert.Equal(t, "0.05", Duration{Minutes: 5}.Format())
	assert.Equal(t, "24.00", Duration{Minutes: 24 * 60}.Format())
	assert.Equal(t, "2.15", Duration{Minutes: 135}.String())
}

func TestFormatRoundTrip(t *testing.T) {
	for m := 0; m <= 48*60; m += 7 {
		d := Duration{Minutes: m}
		got, err := Parse(d.Format())
		require.NoError(t, err, d.Format())
		require.Equal(t, d, got, d.Format())
	}
}

func TestStdConversion(t *testing.T) {
	assert.Equal(t, 90*time.Minute, Duration{Minutes: 90}.Std())
	assert.Equal(t, 2, FromStd(90*time.Second).Minutes)
	assert.Equal(t, 1, FromStd(89*time.Second).Minutes)
}

func TestBoundsCheck(t *testing.T) {
	b := Bounds{Min: 15 * time.Minute, Max: 8 * time.Hour}

	assert.NoError(t, b.Check(Duration{Minutes: 15}))
	assert.NoError(t, b.Check(Duration{Minutes: 480}))

	err := b.Check(Duration{Minutes: 10})
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Contains(t, err.Error(), "0.10")

	err = b.Check(Duration{Minutes: 481})
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.Contains(t, err.Error(), "8.00")

	assert.NoError(t, Bounds{}.Check(Duration{Minutes: 100000}))

	// 307445740 minutes wraps to about five minutes in nanoseconds.
	err = DefaultBounds.Check(Duration{Minutes: 307445740})
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestNormalize(t *testing.T) {
	got, d, err := Normalize("1 hour and 30 minutes", DefaultBounds)
	require.NoError(t, err)
	assert.Equal(t, "1.30", got)
	assert.Equal(t, 90, d.Minutes)

	_, _, err = Normalize("30 hours", DefaultBounds)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, _, err = Normalize("307445740 minutes", DefaultBounds)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	_, _, err = Normalize("no idea", DefaultBounds)
	assert.ErrorIs(t, err, ErrNoDuration)
}
