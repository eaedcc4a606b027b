package member

import "time"

// SetNowFunc overrides the clock until the returned func is called.
func SetNowFunc(f func() time.Time) (restore func()) {
	nowFunc = f
	return func() { nowFunc = time.Now }
}
