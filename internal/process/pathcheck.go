package process

import (
	"path"
	"regexp"
	"runtime"
	"strings"
)

// PathRules selects host path-syntax conventions so validation behaves the
// same in tests regardless of the build platform.
type PathRules int

const (
	UnixRules PathRules = iota
	WindowsRules
)

// HostRules returns the rules for the running platform.
func HostRules() PathRules {
	if runtime.GOOS == "windows" {
		return WindowsRules
	}
	return UnixRules
}

var urlSchemes = []string{"http://", "https://", "ftp://", "file://", "mailto:", "javascript:"}

var (
	reWinDrive = regexp.MustCompile(`^[A-Za-z]:[\\/]`)
	reWinUNC   = regexp.MustCompile(`^\\\\`)
)

// windowsIllegal are characters reserved by Windows path syntax. The drive
// colon is handled separately.
const windowsIllegal = `<>:"|?*`

// IsValidPath is the heuristic gate between the valid and invalid result
// partitions. It checks syntax only, never filesystem existence.
func IsValidPath(value string, allowFilenameOnly bool, rules PathRules) bool {
	if value == "" {
		return false
	}
	lower := strings.ToLower(value)
	for _, scheme := range urlSchemes {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	// Placeholder-bracket strings are sentinels, never paths.
	if strings.HasPrefix(value, "<") && strings.HasSuffix(value, ">") {
		return false
	}

	if rules == WindowsRules {
		rest := value
		if reWinDrive.MatchString(rest) {
			rest = rest[2:]
		}
		if strings.ContainsAny(rest, windowsIllegal) {
			return false
		}
	}

	abs := isAbsolute(value, rules)
	if allowFilenameOnly && !abs {
		return len(value) <= 255
	}
	if abs {
		return true
	}

	// Relative path without filename-only leniency: accept unless
	// normalization collapses it to the filesystem root.
	cleaned := path.Clean(strings.ReplaceAll(value, `\`, "/"))
	return cleaned != "/"
}

func isAbsolute(value string, rules PathRules) bool {
	if rules == WindowsRules {
		return reWinDrive.MatchString(value) || reWinUNC.MatchString(value)
	}
	return strings.HasPrefix(value, "/")
}
