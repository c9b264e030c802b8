package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestRound(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1.00"},
		{"-1.005", "-1.01"},
		{"2.5", "2.50"},
		{"0", "0.00"},
	}
	for _, tc := range cases {
		got := Round(decimal.RequireFromString(tc.in))
		if got.StringFixed(2) != tc.want {
			t.Errorf("Round(%s) = %s, want %s", tc.in, got.StringFixed(2), tc.want)
		}
	}
}

func TestItemTotal(t *testing.T) {
	total := ItemTotal(3, decimal.RequireFromString("2.50"))
	if total.StringFixed(2) != "7.50" {
		t.Errorf("ItemTotal(3, 2.50) = %s, want 7.50", total.StringFixed(2))
	}

	// No float drift on awkward prices.
	total = ItemTotal(3, decimal.RequireFromString("0.10"))
	if total.StringFixed(2) != "0.30" {
		t.Errorf("ItemTotal(3, 0.10) = %s, want 0.30", total.StringFixed(2))
	}
}

func TestParse(t *testing.T) {
	d, err := Parse("12.50")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !d.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("Parse(12.50) = %s", d)
	}

	if _, err := Parse("not-a-number"); err == nil {
		t.Error("expected error for garbage input")
	}
}
