package order

import "time"

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
