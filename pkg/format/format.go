package format

import (
	"fmt"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(
	`^(https?://)?` +
		`((([a-z\d]([a-z\d-]*[a-z\d])*)\.)+[a-z]{2,}|` +
		`((\d{1,3}\.){3}\d{1,3}))` +
		`(:\d+)?(/[-a-z\d%_.~+]*)*` +
		`(\?[;&a-z\d%_.~+=-]*)?` +
		`(#[-a-z\d_]*)?$`)

// FileSize renders a byte count in human-readable form.
func FileSize(sizeBytes int64) string {
	size := float64(sizeBytes)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024.0 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.1f TB", size)
}

// Duration renders seconds as minutes:seconds.
func Duration(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// IsValidURL reports whether the text looks like an HTTP(S) link.
func IsValidURL(url string) bool {
	return urlPattern.MatchString(strings.ToLower(url))
}

// SafeFileName strips characters Telegram captions and the filesystem
// disagree about, keeping alphanumerics, spaces, dots, underscores and dashes.
func SafeFileName(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == ' ' || c == '.' || c == '_' || c == '-':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
