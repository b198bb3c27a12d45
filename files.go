/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
)

// humanReadableSize formats a byte count with SI prefixes, e.g. "4.1 kB".
func humanReadableSize[T ~int | ~int64](n T) string {
	const unit = 1000

	bytes := int64(n)
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	value := float64(bytes)
	prefix := 0
	for value >= unit*unit && prefix < len("kMGTPE")-1 {
		value /= unit
		prefix++
	}

	return fmt.Sprintf("%.1f %cB", value/unit, "kMGTPE"[prefix])
}
