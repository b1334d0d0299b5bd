package streamapi

import (
	"time"

	"github.com/paystream/sdk-go/core/types"
)

// SystemClock is the wall-clock TimeSource, in unix seconds.
type SystemClock struct{}

var _ types.TimeSource = SystemClock{}

func (SystemClock) Now() int64 {
	return time.Now().Unix()
}
