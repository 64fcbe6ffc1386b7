package util

import (
	"path/filepath"
	"regexp"
)

// Anything outside ASCII letters and digits is unsafe in an artifact name.
var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9]`)

// SafeName turns a project directory name into a file-name stem, replacing
// every character that is not an ASCII letter or digit with an underscore.
// Only the last path element is used.
func SafeName(project string) string {
	return unsafeNameRe.ReplaceAllString(filepath.Base(project), "_")
}
