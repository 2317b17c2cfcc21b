// CoverLink - Scrolling Title
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
)

const scrollGap = "   "

// Marquee shows a title centered when it fits the display width and scrolls
// it otherwise. Scrolling pauses for Delay before each pass.
type Marquee struct {
	Width int
	Face  font.Face
	Speed int
	Delay time.Duration

	text        string
	displayText string
	textWidth   int
	scrolling   bool
	offset      float64
	waiting     bool
	waitStart   time.Time
}

// NewMarquee creates a marquee for a display of the given width.
func NewMarquee(width int, face font.Face, speed int, delay time.Duration) *Marquee {
	return &Marquee{Width: width, Face: face, Speed: speed, Delay: delay}
}

// SetTitle switches to a new title. Setting the current title again is a no-op.
func (m *Marquee) SetTitle(title string, now time.Time) {
	if title == m.text {
		return
	}

	m.text = title
	m.offset = 0
	m.waiting = true
	m.waitStart = now

	dashed := "- " + title + " -"
	if w := TextWidth(m.Face, dashed); w <= m.Width {
		m.displayText, m.textWidth, m.scrolling = dashed, w, false
		return
	}
	if w := TextWidth(m.Face, title); w <= m.Width {
		m.displayText, m.textWidth, m.scrolling = title, w, false
		return
	}
	m.displayText = title + scrollGap
	m.textWidth = TextWidth(m.Face, m.displayText)
	m.scrolling = true
}

// Update advances the scroll position by one frame.
func (m *Marquee) Update(now time.Time) {
	if !m.scrolling {
		return
	}

	if m.waiting {
		if now.Sub(m.waitStart) >= m.Delay {
			m.waiting = false
		}
		return
	}

	m.offset += float64(m.Speed)
	if m.offset >= float64(m.textWidth) {
		m.offset = 0
		m.waiting = true
		m.waitStart = now
	}
}

// Draw renders the title with its top at y.
func (m *Marquee) Draw(dst draw.Image, y int) {
	if m.displayText == "" {
		return
	}
	if !m.scrolling {
		DrawText(dst, m.Face, (m.Width-m.textWidth)/2, y, m.displayText)
		return
	}
	x := -int(m.offset)
	DrawText(dst, m.Face, x, y, m.displayText)
	DrawText(dst, m.Face, x+m.textWidth, y, m.displayText)
}

// Text returns the current title.
func (m *Marquee) Text() string { return m.text }

// DisplayText returns the string actually drawn.
func (m *Marquee) DisplayText() string { return m.displayText }

// Scrolling reports whether the title is too wide and scrolls.
func (m *Marquee) Scrolling() bool { return m.scrolling }

// Offset returns the current scroll offset in pixels.
func (m *Marquee) Offset() int { return int(m.offset) }
