package util

import (
	"time"

	"github.com/golang-sql/civil"
)

// CivilWindow converts a stream's unix-second window to civil date-times
// in UTC, for display and reporting. Accounting itself never uses this;
// all engine math stays on integer seconds.
func CivilWindow(startUnix, stopUnix int64) (civil.DateTime, civil.DateTime) {
	start := civil.DateTimeOf(time.Unix(startUnix, 0).UTC())
	stop := civil.DateTimeOf(time.Unix(stopUnix, 0).UTC())
	return start, stop
}
