package utils

import (
	"fmt"

	"github.com/docker/go-units"
)

// FormatBytes renders n with binary units, e.g. "1.5MiB".
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + units.BytesSize(float64(-n))
	}
	return units.BytesSize(float64(n))
}

func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}
