package fade

import "fmt"

// State is a chunk's position in its lifecycle.
type State uint8

const (
	Generating State = iota
	FadingIn
	Visible
	FadingOut
	Hibernated
	Destroyed
)

var stateNames = [...]string{
	Generating: "generating",
	FadingIn:   "fading_in",
	Visible:    "visible",
	FadingOut:  "fading_out",
	Hibernated: "hibernated",
	Destroyed:  "destroyed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Fade is the per-chunk lifecycle record. Opacity is in [0, 1].
type Fade struct {
	State   State
	Opacity float64
	// Rate is the fade-in speed in opacity per second chosen when the
	// current fade-in began. Fade-out runs at Rate times the out factor.
	Rate float64

	// TargetCache selects hibernation over destruction when fade-out completes.
	TargetCache bool
	FullyLoaded bool
	// Transparent is true while materials must be blended.
	Transparent bool
}

func (f *Fade) begin(immediate bool, rate float64) {
	f.Rate = rate
	f.TargetCache = false
	if immediate {
		f.State = Visible
		f.Opacity = 1
		f.FullyLoaded = true
		f.Transparent = false
		return
	}
	f.State = FadingIn
	f.Opacity = 0
	f.FullyLoaded = false
	f.Transparent = true
}

// Out starts a fade-out. It reports false when the chunk is not on screen.
func (f *Fade) Out(targetCache bool) bool {
	switch f.State {
	case FadingIn, Visible:
		f.State = FadingOut
		f.TargetCache = targetCache
		f.FullyLoaded = false
		f.Transparent = true
		return true
	case FadingOut:
		f.TargetCache = targetCache
		return true
	}
	return false
}

// Resume turns a fade-out back into a fade-in from the current opacity.
func (f *Fade) Resume() bool {
	if f.State != FadingOut {
		return false
	}
	f.State = FadingIn
	f.TargetCache = false
	return true
}

// Hibernate parks the chunk hidden at full opacity so a later fade-in starts clean.
func (f *Fade) Hibernate() {
	f.State = Hibernated
	f.Opacity = 1
	f.FullyLoaded = false
	f.Transparent = false
	f.TargetCache = false
}

func (f *Fade) Destroy() {
	f.State = Destroyed
	f.Opacity = 0
	f.FullyLoaded = false
	f.Transparent = false
}

// OnScreen reports whether the chunk belongs in the render export.
func (f Fade) OnScreen() bool {
	return f.State == FadingIn || f.State == Visible || f.State == FadingOut
}
