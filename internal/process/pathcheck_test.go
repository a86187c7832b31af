package process

import (
	"strings"
	"testing"
)

func TestIsValidPath(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		filenameOnly bool
		rules        PathRules
		want         bool
	}{
		{"unix absolute", "/usr/bin/curl", true, UnixRules, true},
		{"unix absolute no leniency", "/usr/bin/curl", false, UnixRules, true},
		{"windows drive path", `C:\a\b.exe`, true, WindowsRules, true},
		{"windows drive forward slashes", `C:/Windows/System32/cmd.exe`, true, WindowsRules, true},
		{"windows UNC path", `\\server\share\tool.exe`, true, WindowsRules, true},
		{"http url rejected", "http://x/y", true, UnixRules, false},
		{"https url rejected", "https://evil.example/payload.exe", true, WindowsRules, false},
		{"uppercase scheme rejected", "HTTP://x/y", true, UnixRules, false},
		{"ftp url rejected", "ftp://host/file", true, UnixRules, false},
		{"mailto rejected", "mailto:a@b.c", true, UnixRules, false},
		{"sentinel brackets rejected", "<no path>", true, UnixRules, false},
		{"parse failure sentinel rejected", "<json parse failed: boom>", true, UnixRules, false},
		{"bare filename allowed when lenient", "short.exe", true, UnixRules, true},
		{"bare filename rejected over 255 chars", strings.Repeat("a", 256), true, UnixRules, false},
		{"bare filename at exactly 255 chars", strings.Repeat("a", 255), true, UnixRules, true},
		{"empty string rejected", "", true, UnixRules, false},
		{"windows illegal chars rejected", `C:\a\b<c>.exe`, true, WindowsRules, false},
		{"windows pipe rejected", `foo|bar`, true, WindowsRules, false},
		{"drive colon not illegal", `D:\ok.txt`, true, WindowsRules, true},
		{"relative path without leniency", "bin/curl", false, UnixRules, true},
		{"root collapse rejected without leniency", `\`, false, UnixRules, false},
		{"unix treats backslash path as filename", `C:\a\b.exe`, true, UnixRules, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidPath(tt.value, tt.filenameOnly, tt.rules)
			if got != tt.want {
				t.Errorf("IsValidPath(%q, %v, %v) = %v, want %v",
					tt.value, tt.filenameOnly, tt.rules, got, tt.want)
			}
		})
	}
}

func TestHostRules(t *testing.T) {
	// Sanity only: the result depends on the build platform, but it must be
	// one of the two defined rule sets.
	r := HostRules()
	if r != UnixRules && r != WindowsRules {
		t.Errorf("HostRules() = %v", r)
	}
}
