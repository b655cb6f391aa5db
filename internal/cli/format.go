package cli

import "fmt"

// FormatKB renders a kilobyte size the way results are reported (one decimal),
// switching to MB at 1024 KB.
func FormatKB(kb float64) string {
	if kb >= 1024 {
		return fmt.Sprintf("%.1f MB", kb/1024)
	}
	return fmt.Sprintf("%.1f KB", kb)
}
