package ui

import (
	"strings"
	"testing"
)

func TestShouldUseColor(t *testing.T) {
	for _, tc := range []struct {
		name    string
		env     map[string]string
		want    bool
		checked bool // false: result depends on the test runner's TTY
	}{
		{"no color wins", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, false, true},
		{"force", map[string]string{"CLICOLOR_FORCE": "1"}, true, true},
		{"disabled", map[string]string{"CLICOLOR": "0"}, false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{"NO_COLOR", "CLICOLOR_FORCE", "CLICOLOR"} {
				t.Setenv(k, tc.env[k])
			}
			if got := ShouldUseColor(); tc.checked && got != tc.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestProgressBar(t *testing.T) {
	noColor = true
	t.Cleanup(func() { noColor = false })

	for _, tc := range []struct {
		percent, width int
		want           string
	}{
		{0, 10, "[----------] 0%"},
		{60, 10, "[######----] 60%"},
		{100, 4, "[####] 100%"},
		{150, 4, "[####] 100%"},
		{-5, 4, "[----] 0%"},
	} {
		if got := ProgressBar(tc.percent, tc.width); got != tc.want {
			t.Errorf("ProgressBar(%d, %d) = %q, want %q", tc.percent, tc.width, got, tc.want)
		}
	}
}

func TestRenderStatus(t *testing.T) {
	if got := RenderStatus("draft"); got != "draft" {
		t.Errorf("draft should be plain, got %q", got)
	}
	if got := RenderStatus("error"); !strings.Contains(got, "\x1b[38;5;203m") {
		t.Errorf("error should be red, got %q", got)
	}

	noColor = true
	t.Cleanup(func() { noColor = false })
	if got := RenderAssessment("unsatisfactory"); got != "unsatisfactory" {
		t.Errorf("no-color output = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	for _, tc := range []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"12 High Street, Leeds", 10, "12 High..."},
		{"Ångström", 5, "Ån..."},
		{"abcdef", 2, "ab"},
	} {
		if got := Truncate(tc.in, tc.n); got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
