package scene

import "math"

// Zoom bounds and wheel/button step for the image viewport.
const (
	MinScale = 0.5
	MaxScale = 3.0
	ZoomStep = 0.2

	dragThreshold = 2.0 // px of travel before a gesture counts as a drag
)

// Interaction event types emitted by the viewport and overlay.
const (
	EventZoomChanged    = "zoom_changed"
	EventPanChanged     = "pan_changed"
	EventViewReset      = "view_reset"
	EventPinAdded       = "pin_added"
	EventPinRemoved     = "pin_removed"
	EventGridToggled    = "grid_toggled"
	EventPinModeToggled = "pin_mode_toggled"
)

type (
	// EventSink receives interaction events as they occur. The owning session hands
	// its log to each engine component it constructs.
	EventSink interface {
		Append(eventType string, payload map[string]interface{})
	}

	// Point is a position in normalized scene coordinates: fractions of the rendered
	// image's width/height, independent of the current zoom/pan.
	Point struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	// Offset is a translation in screen pixels.
	Offset struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	// Box is an on-screen pixel rectangle.
	Box struct {
		Left   float64 `json:"left"`
		Top    float64 `json:"top"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}

	// Transform is the pan/zoom state applied to the scene image.
	Transform struct {
		Scale     float64 `json:"scale"`
		Translate Offset  `json:"translate"`
	}
)

func Identity() Transform { return Transform{Scale: 1} }

// Apply returns the on-screen rectangle of base under the transform: scaled about
// the center of base, then translated (CSS transform semantics).
func (t Transform) Apply(base Box) Box {
	w := base.Width * t.Scale
	h := base.Height * t.Scale
	cx := base.Left + base.Width/2 + t.Translate.X
	cy := base.Top + base.Height/2 + t.Translate.Y
	return Box{Left: cx - w/2, Top: cy - h/2, Width: w, Height: h}
}

// drag gesture states; dragReleased keeps exactly one click suppression pending
type dragPhase int

const (
	dragIdle dragPhase = iota
	dragActive
	dragReleased
)

// Viewport maintains the zoom scale and pan translation for an image scene and
// disambiguates drag gestures from placement clicks.
type Viewport struct {
	events EventSink

	tf Transform

	drag    dragPhase
	startX  float64
	startY  float64
	origin  Offset
	dragged bool
}

func NewViewport(events EventSink) *Viewport {
	return &Viewport{events: events, tf: Identity()}
}

func (v *Viewport) Transform() Transform { return v.tf }

// ZoomBy adjusts the scale by delta, rounded to 2 decimals and clamped to
// [MinScale, MaxScale]. A delta that clamps back to the current scale is a
// silent no-op: no event is emitted.
func (v *Viewport) ZoomBy(delta float64) {
	next := round2(clampScale(v.tf.Scale + delta))
	if next == v.tf.Scale {
		return
	}
	v.tf.Scale = next
	v.events.Append(EventZoomChanged, map[string]interface{}{"scale": next})
}

func (v *Viewport) ZoomIn()  { v.ZoomBy(ZoomStep) }
func (v *Viewport) ZoomOut() { v.ZoomBy(-ZoomStep) }

// PointerDown starts a potential drag, capturing the pointer position and the
// translation at press time.
func (v *Viewport) PointerDown(x, y float64) {
	v.drag = dragActive
	v.startX, v.startY = x, y
	v.origin = v.tf.Translate
	v.dragged = false
}

// PointerMove pans the scene while a drag is active: the translation follows the
// pointer delta and every movement emits a pan event. Travel past a small
// threshold marks the gesture as a drag so the click following release does not
// register as a placement.
func (v *Viewport) PointerMove(x, y float64) {
	if v.drag != dragActive {
		return
	}
	dx, dy := x-v.startX, y-v.startY
	if math.Abs(dx) > dragThreshold || math.Abs(dy) > dragThreshold {
		v.dragged = true
	}
	v.tf.Translate = Offset{X: v.origin.X + dx, Y: v.origin.Y + dy}
	v.events.Append(EventPanChanged, map[string]interface{}{"x": v.tf.Translate.X, "y": v.tf.Translate.Y})
}

// PointerUp ends the gesture. A gesture that travelled leaves one click
// suppression pending.
func (v *Viewport) PointerUp() {
	if v.drag != dragActive {
		return
	}
	if v.dragged {
		v.drag = dragReleased
	} else {
		v.drag = dragIdle
	}
	v.dragged = false
}

// PointerCancel ends the gesture exactly as a release does, for pointers leaving
// the scene mid-drag.
func (v *Viewport) PointerCancel() { v.PointerUp() }

// ClickAllowed reports whether a click should register, consuming at most one
// pending suppression from a drag that just ended.
func (v *Viewport) ClickAllowed() bool {
	if v.drag == dragReleased {
		v.drag = dragIdle
		return false
	}
	return true
}

func (v *Viewport) Dragging() bool { return v.drag == dragActive }

// ResetView restores the identity transform. Callable in any lifecycle state,
// idempotent, and always emits the reset values.
func (v *Viewport) ResetView() {
	v.tf = Identity()
	v.events.Append(EventViewReset, map[string]interface{}{"scale": 1.0, "x": 0.0, "y": 0.0})
}

// ScreenToNormalized converts client pixel coordinates to fractions of the
// rendered image box (the image's on-screen rectangle after transforms).
// Positions outside the image are rejected: clicks landing on surrounding
// chrome are not placements.
func ScreenToNormalized(clientX, clientY float64, box Box) (Point, bool) {
	if box.Width <= 0 || box.Height <= 0 {
		return Point{}, false
	}
	p := Point{X: (clientX - box.Left) / box.Width, Y: (clientY - box.Top) / box.Height}
	if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
		return Point{}, false
	}
	return p, true
}

// PinScreenPosition returns the on-screen pixel position of a normalized point
// within box.
func PinScreenPosition(p Point, box Box) (x, y float64) {
	return box.Left + p.X*box.Width, box.Top + p.Y*box.Height
}

func clampScale(s float64) float64 {
	return math.Min(math.Max(s, MinScale), MaxScale)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
