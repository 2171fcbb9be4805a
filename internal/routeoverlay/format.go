package routeoverlay

import (
	"fmt"
	"math"
)

// FormatDistance renders meters as kilometers with two decimals.
func FormatDistance(meters float64) string {
	return fmt.Sprintf("%.2f km", meters/1000)
}

// FormatDuration renders seconds as rounded minutes, with hours once the
// total reaches one hour.
func FormatDuration(seconds float64) string {
	mins := int(math.Round(seconds / 60))
	if mins >= 60 {
		return fmt.Sprintf("%d h %d min", mins/60, mins%60)
	}
	return fmt.Sprintf("%d min", mins)
}
