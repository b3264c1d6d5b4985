package rates

// Window is a fixed-window event counter. Time units are the caller's.
type Window struct {
	Start uint64
	Count int
}

// Allow counts one event at now. A zero window or non-positive max disables
// the limit. When denied, cooldown is the time left until the window reopens.
func (w *Window) Allow(now, window uint64, max int) (ok bool, cooldown uint64) {
	if window == 0 || max <= 0 {
		return true, 0
	}
	if now < w.Start || now-w.Start >= window {
		w.Start = now
		w.Count = 0
	}
	w.Count++
	if w.Count <= max {
		return true, 0
	}
	return false, (w.Start + window) - now
}
