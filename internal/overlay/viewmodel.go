package overlay

import "strings"

// UIState is the overlay's local rendering state, decoded from the
// overlaybus state socket and combined with the client's own animation
// timers. It intentionally has no spectrum field: spectrum bands are
// derived locally from the audio socket, never carried on the wire.
type UIState struct {
	Mode            string
	Text            string
	Fade            float64
	ClosingProgress float64
	PreListening    bool
}

// DecodeViewModel parses one overlaybus state-socket payload (the
// tab-separated key=value record written by overlaybus.ViewModel.Encode)
// into a UIState. Unknown or malformed fields are left at their zero
// value rather than failing the whole decode: a partially-understood
// snapshot is still worth rendering.
func DecodeViewModel(payload []byte) UIState {
	var state UIState
	for _, field := range strings.Split(string(payload), "\t") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "mode":
			state.Mode = value
		case "text":
			state.Text = value
		case "fade":
			state.Fade = parseFloat(value)
		case "closing_progress":
			state.ClosingProgress = parseFloat(value)
		case "pre_listening":
			state.PreListening = value == "true"
		}
	}
	return state
}

func parseFloat(s string) float64 {
	var v float64
	var frac float64 = 1
	var seenDot bool
	var neg bool
	for i, r := range s {
		switch {
		case r == '-' && i == 0:
			neg = true
		case r == '.':
			seenDot = true
		case r >= '0' && r <= '9':
			d := float64(r - '0')
			if seenDot {
				frac /= 10
				v += d * frac
			} else {
				v = v*10 + d
			}
		}
	}
	if neg {
		v = -v
	}
	return v
}

// IsHidden reports whether the overlay should currently show nothing at
// all, i.e. the daemon is idle and no closing fade is in progress.
func (s UIState) IsHidden() bool {
	return s.Mode == "hidden" && s.ClosingProgress == 0
}
