package labeldate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		dates     []string
		suggested string
	}{
		{
			name:      "dotted four digit year",
			text:      "賞味期限 2025.12.22 まで",
			dates:     []string{"2025-12-22"},
			suggested: "2025-12-22",
		},
		{
			name:      "two digit year with lot number",
			text:      "25/1/5 LOT123",
			dates:     []string{"2025-01-05"},
			suggested: "2025-01-05",
		},
		{
			name:      "unit markers sorted ascending",
			text:      "2025年1月5日 / 2024年12月31日",
			dates:     []string{"2024-12-31", "2025-01-05"},
			suggested: "2024-12-31",
		},
		{
			name:      "same day in different notations",
			text:      "2025-01-05\n25年1月5日\n2025/1/5",
			dates:     []string{"2025-01-05"},
			suggested: "2025-01-05",
		},
		{
			name:      "two digit unit markers",
			text:      "製造 24年3月1日",
			dates:     []string{"2024-03-01"},
			suggested: "2024-03-01",
		},
		{
			name:      "full width digits",
			text:      "２０２６．０３．１５",
			dates:     []string{"2026-03-15"},
			suggested: "2026-03-15",
		},
		{
			name:      "february 31 is accepted",
			text:      "2025-02-31",
			dates:     []string{"2025-02-31"},
			suggested: "2025-02-31",
		},
		{
			name:  "no dates",
			text:  "no dates here",
			dates: []string{},
		},
		{
			name:  "year below floor",
			text:  "1999-01-01",
			dates: []string{},
		},
		{
			name:  "invalid month and day",
			text:  "2025-13-01 2025-01-32 2025-00-10",
			dates: []string{},
		},
		{
			name:  "empty",
			text:  "",
			dates: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Default().Extract(tt.text)

			assert.Equal(t, tt.dates, res.Dates)
			if tt.suggested == "" {
				assert.Nil(t, res.Suggested)
				return
			}
			require.NotNil(t, res.Suggested)
			assert.Equal(t, tt.suggested, *res.Suggested)
		})
	}
}

func TestExtractYearRange(t *testing.T) {
	e := Extractor{MinYear: 2024, MaxYear: 2025}

	res := e.Extract("2023/01/01 2024/06/01 2025/06/01 2026/01/01")

	assert.Equal(t, []string{"2024-06-01", "2025-06-01"}, res.Dates)
}
