package plugin

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// BrowserPackage opens submitted urls, the fallback when no explicit
// package was requested for the url category.
const BrowserPackage = "browser"

// ErrNoPackage reports that no analysis package matches the file type.
var ErrNoPackage = errors.New("no valid analysis package available")

// Choose selects the default analysis package for a submitted file from
// its magic description and name. Used when the submission carries no
// explicit package.
func Choose(fileType, fileName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case strings.Contains(fileType, "Android application package"),
		strings.Contains(fileType, "Zip archive") && ext == ".apk",
		ext == ".apk":
		return "apk", nil
	case strings.Contains(fileType, "ELF"):
		return "shell", nil
	case strings.Contains(fileType, "HTML"), ext == ".html", ext == ".htm":
		return BrowserPackage, nil
	default:
		return "", fmt.Errorf("%w for file type: %s", ErrNoPackage, fileType)
	}
}
