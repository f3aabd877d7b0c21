package overlay

import (
	"strings"
	"time"

	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/config"
)

// backgroundARGB is a translucent dark panel; the spinner/bars are drawn
// brighter on top of it.
const backgroundARGB = 0xC0202020

// Render draws one frame of the overlay panel into buf, branching on the
// session's current UIState.Mode per spec.md §4.11: Listening shows the
// live spectrum plus up to two lines of preview text, Processing shows an
// indeterminate spinner with no text, Closing keeps the spectrum bars
// (without text) over the fading background, and Hidden paints only the
// background. Whenever ClosingProgress is above zero a wipe is drawn
// toward the edge as it advances.
func Render(buf *PixelBuffer, state UIState, bands []float64, elements config.ElementsConfig, animations config.AnimationsConfig) {
	fillBackground(buf, state.Fade)

	switch state.Mode {
	case "listening":
		drawSpectrum(buf, bands, elements)
		drawTextLines(buf, splitTextLines(state.Text))
	case "processing":
		drawSpinner(buf, animations)
	case "closing":
		drawSpectrum(buf, bands, elements)
	}

	if state.ClosingProgress > 0 {
		drawClosingWipe(buf, state.ClosingProgress)
	}
}

func fillBackground(buf *PixelBuffer, fade float64) {
	alpha := byte(clamp01(fade) * 0xC0)
	pixel := []byte{0x20, 0x20, 0x20, alpha}
	for y := 0; y < buf.Height; y++ {
		row := y * buf.Stride
		for x := 0; x < buf.Width; x++ {
			off := row + x*4
			copy(buf.Pixels[off:off+4], pixel)
		}
	}
}

func drawSpectrum(buf *PixelBuffer, bands []float64, elements config.ElementsConfig) {
	if len(bands) == 0 || buf.Width <= 0 || buf.Height <= 0 {
		return
	}

	barWidth := buf.Width / (len(bands) * 2)
	if barWidth < 1 {
		barWidth = 1
	}
	gap := barWidth
	baseY := buf.Height - 4

	for i, level := range bands {
		height := int(elements.MinBarHeight + clamp01(level)*(elements.MaxBarHeight-elements.MinBarHeight))
		if height > buf.Height {
			height = buf.Height
		}
		x0 := i*(barWidth+gap) + gap/2
		drawBar(buf, x0, barWidth, baseY, height)
	}
}

func drawBar(buf *PixelBuffer, x0, width, baseY, height int) {
	pixel := []byte{0xE0, 0xC0, 0x40, 0xFF}
	fillRect(buf, x0, baseY-height, width, height+1, pixel)
}

func drawClosingWipe(buf *PixelBuffer, progress float64) {
	wipeWidth := int(clamp01(progress) * float64(buf.Width))
	pixel := []byte{0x40, 0x40, 0x40, 0x80}
	for y := 0; y < buf.Height; y++ {
		row := y * buf.Stride
		for x := 0; x < wipeWidth; x++ {
			off := row + x*4
			copy(buf.Pixels[off:off+4], pixel)
		}
	}
}

// splitTextLines caps preview text to the two lines the panel has room
// for; callers pass PreviewEngine partials, which are already short, but
// a caret-joined multi-line partial should still degrade gracefully.
func splitTextLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 2 {
		lines = lines[:2]
	}
	return lines
}

func drawTextLines(buf *PixelBuffer, lines []string) {
	const lineHeight = 10
	for i, line := range lines {
		drawTextLine(buf, line, 4+i*lineHeight)
	}
}

// drawTextLine renders text as one filled block per non-space rune. The
// overlay has no font atlas; a block-per-character cursor is enough to
// show preview text is present and roughly how long it is at a glance.
func drawTextLine(buf *PixelBuffer, text string, y int) {
	if buf.Width <= 0 {
		return
	}
	const charWidth = 6
	pixel := []byte{0xE8, 0xE8, 0xE8, 0xFF}
	x := 4
	for _, r := range text {
		if x+charWidth-2 >= buf.Width {
			break
		}
		if r != ' ' {
			fillRect(buf, x, y, charWidth-2, 6, pixel)
		}
		x += charWidth
	}
}

// drawSpinner renders the Processing indicator as animations.SpinnerDots
// dots cycling one highlighted dot at animations.SpinnerHz, matching
// spec.md's "processing: spinner, no text" state.
func drawSpinner(buf *PixelBuffer, animations config.AnimationsConfig) {
	dots := animations.SpinnerDots
	if dots <= 0 {
		dots = 3
	}
	hz := animations.SpinnerHz
	if hz <= 0 {
		hz = 4
	}

	periodMS := int64(1000 / hz)
	if periodMS <= 0 {
		periodMS = 1
	}
	active := int(time.Now().UnixMilli()/periodMS) % dots

	const dotSize = 5
	const gap = 4
	total := dots*dotSize + (dots-1)*gap
	startX := (buf.Width - total) / 2
	y := buf.Height/2 - dotSize/2

	dim := []byte{0x60, 0x60, 0x60, 0xFF}
	bright := []byte{0xE8, 0xE8, 0xE8, 0xFF}
	for i := 0; i < dots; i++ {
		pixel := dim
		if i == active {
			pixel = bright
		}
		fillRect(buf, startX+i*(dotSize+gap), y, dotSize, dotSize, pixel)
	}
}

func fillRect(buf *PixelBuffer, x0, y0, width, height int, pixel []byte) {
	for y := y0; y < y0+height; y++ {
		if y < 0 || y >= buf.Height {
			continue
		}
		row := y * buf.Stride
		for x := x0; x < x0+width; x++ {
			if x < 0 || x >= buf.Width {
				continue
			}
			off := row + x*4
			if off+4 > len(buf.Pixels) {
				continue
			}
			copy(buf.Pixels[off:off+4], pixel)
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
