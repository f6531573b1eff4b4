package course

import "fmt"

// FormatDuration renders seconds as "<minutes>m <seconds>s"
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}
