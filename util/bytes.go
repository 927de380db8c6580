// util/bytes.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package util

import "fmt"

var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FmtBytes renders a byte count with a binary unit suffix, one decimal of
// precision above 1 KiB.
func FmtBytes(n int64) string {
	v := float64(n)
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f %s", v, byteUnits[unit])
}

// FmtRate renders a bytes-per-second transfer rate.
func FmtRate(bytes int64, seconds float64) string {
	if seconds <= 0 {
		return "- B/s"
	}
	return FmtBytes(int64(float64(bytes)/seconds)) + "/s"
}
