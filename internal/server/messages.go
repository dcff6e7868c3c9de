package server

import "time"

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
