// Package window tracks the overlay's visibility for whatever renders it.
package window

import (
	"log"
	"sync"

	"shadow-ai/src/messages"
)

// minVisibleOpacity is the threshold at or below which the overlay hides.
const minVisibleOpacity = 0.1

// Controller publishes window-visibility events on every change.
type Controller struct {
	mu      sync.Mutex
	visible bool
	opacity float64
	pub     messages.Publisher
}

func New(pub messages.Publisher, opacity float64) *Controller {
	c := &Controller{visible: true, opacity: 1.0, pub: pub}
	c.setOpacity(opacity)
	return c
}

func (c *Controller) Hide() { c.setVisible(false) }

func (c *Controller) Show() { c.setVisible(true) }

// Toggle flips visibility and returns the new state.
func (c *Controller) Toggle() bool {
	c.mu.Lock()
	v := !c.visible
	c.mu.Unlock()
	c.setVisible(v)
	return v
}

func (c *Controller) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

func (c *Controller) Opacity() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opacity
}

// SetOpacity clamps to [0, 1]; values at or below 0.1 hide the window.
func (c *Controller) SetOpacity(v float64) {
	c.setOpacity(v)
	c.publish()
}

func (c *Controller) setOpacity(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	c.mu.Lock()
	c.opacity = v
	if v <= minVisibleOpacity {
		c.visible = false
	}
	c.mu.Unlock()
}

func (c *Controller) setVisible(v bool) {
	c.mu.Lock()
	c.visible = v
	if v && c.opacity <= minVisibleOpacity {
		c.opacity = 1.0
	}
	c.mu.Unlock()
	log.Printf("window: visible=%v", v)
	c.publish()
}

func (c *Controller) publish() {
	if c.pub == nil {
		return
	}
	c.mu.Lock()
	ev := messages.WindowVisibility{Visible: c.visible, Opacity: c.opacity}
	c.mu.Unlock()
	c.pub.Publish(ev)
}
