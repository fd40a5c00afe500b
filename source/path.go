package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
)

// Resolve expands a leading ~ and ** patterns in pattern and returns the single
// regular file it matches.
func Resolve(pattern string) (string, error) {
	if strings.TrimSpace(pattern) == "" {
		return "", fmt.Errorf("path must not be empty")
	}

	absPattern, err := pathutil.NewPathModifier().AbsPath(pattern)
	if err != nil {
		return "", fmt.Errorf("expand path %s: %w", pattern, err)
	}

	matches, err := doublestar.FilepathGlob(absPattern)
	if err != nil {
		return "", fmt.Errorf("match pattern %s: %w", pattern, err)
	}

	var files []string
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", match, err)
		}
		if info.Mode().IsRegular() {
			files = append(files, filepath.Clean(match))
		}
	}

	switch len(files) {
	case 0:
		return "", fmt.Errorf("no file matches %s", pattern)
	case 1:
		return files[0], nil
	default:
		return "", fmt.Errorf("%s matches %d files, expected exactly one: %s", pattern, len(files), strings.Join(files, ", "))
	}
}
