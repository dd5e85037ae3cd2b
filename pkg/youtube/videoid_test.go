package youtube

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"  dQw4w9WgXcQ\n", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=42", "dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ", true},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://youtube.com/shorts/abcdefghijk", "abcdefghijk", true},
		{"https://www.youtube.com/v/a-b_c-d_e-f", "a-b_c-d_e-f", true},
		{"", "", false},
		{"short", "", false},
		{"dQw4w9WgXcQX", "", false},
		{"https://vimeo.com/123456789", "", false},
		{"https://www.youtube.com/watch?v=tooShort", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractVideoID(tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5415, ParseDuration("PT1H30M15S"))
	assert.Equal(t, 213, ParseDuration("PT3M33S"))
	assert.Equal(t, 45, ParseDuration("PT45S"))
	assert.Equal(t, 7200, ParseDuration("PT2H"))
	assert.Equal(t, 0, ParseDuration("P1D"))
	assert.Equal(t, 0, ParseDuration("garbage"))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1:30:15", FormatDuration(5415))
	assert.Equal(t, "3:33", FormatDuration(213))
	assert.Equal(t, "0:00", FormatDuration(0))
	assert.Equal(t, "0:00", FormatDuration(-5))
}
