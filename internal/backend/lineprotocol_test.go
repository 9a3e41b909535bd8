package backend

import (
	"fmt"
	"testing"
	"time"
)

func TestFormatLineProtocol(t *testing.T) {
	ts := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

	got := formatLineProtocol(
		"environment",
		map[string]string{"chamber": "chamber-01"},
		map[string]interface{}{
			"temperature_c": 21.5,
			"humidity":      48.0,
		},
		ts,
	)

	want := fmt.Sprintf("environment,chamber=chamber-01 humidity=48,temperature_c=21.5 %d", ts.UnixNano())
	if got != want {
		t.Errorf("formatLineProtocol() = %q, want %q", got, want)
	}
}

func TestFormatLineProtocol_SortsTags(t *testing.T) {
	got := formatLineProtocol(
		"m",
		map[string]string{"zebra": "1", "alpha": "2"},
		map[string]interface{}{"v": 1.0},
		time.Unix(0, 42),
	)

	want := "m,alpha=2,zebra=1 v=1 42"
	if got != want {
		t.Errorf("formatLineProtocol() = %q, want %q", got, want)
	}
}

func TestFormatLineProtocol_EscapesSpecials(t *testing.T) {
	got := formatLineProtocol(
		"my measurement",
		map[string]string{"loc": "rack 1,shelf=2"},
		map[string]interface{}{"v": 1.0},
		time.Unix(0, 1),
	)

	want := `my\ measurement,loc=rack\ 1\,shelf\=2 v=1 1`
	if got != want {
		t.Errorf("formatLineProtocol() = %q, want %q", got, want)
	}
}

func TestFormatLineProtocol_StripsNewlines(t *testing.T) {
	got := formatLineProtocol(
		"m",
		map[string]string{"t": "a\nb\rc"},
		map[string]interface{}{"v": 1.0},
		time.Unix(0, 1),
	)

	want := "m,t=abc v=1 1"
	if got != want {
		t.Errorf("formatLineProtocol() = %q, want %q", got, want)
	}
}

func TestFormatLineProtocol_FieldTypes(t *testing.T) {
	got := formatLineProtocol(
		"m",
		nil,
		map[string]interface{}{
			"f": 2.5,
			"i": 7,
			"b": true,
			"s": "text",
		},
		time.Unix(0, 9),
	)

	want := `m b=true,f=2.5,i=7i,s="text" 9`
	if got != want {
		t.Errorf("formatLineProtocol() = %q, want %q", got, want)
	}
}
