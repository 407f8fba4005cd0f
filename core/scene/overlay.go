package scene

// Reference grid labels drawn over the scene when the grid is shown.
var (
	GridColumns = []string{"A", "B", "C", "D", "E"}
	GridRows    = []string{"1", "2", "3", "4"}
)

// GridSpec describes the fixed reference grid the client draws over the scene.
type GridSpec struct {
	Columns []string `json:"columns"`
	Rows    []string `json:"rows"`
}

func DefaultGrid() GridSpec {
	return GridSpec{Columns: GridColumns, Rows: GridRows}
}

type (
	// ToolConfig declares which annotation tools the manifest enables.
	ToolConfig struct {
		Grid bool `json:"grid"`
		Pins bool `json:"pins"`
	}

	// Pin is a user-placed point of interest in normalized scene coordinates.
	// Pins are anchored to image content: their position never changes under
	// zoom or pan. Add and remove only; repositioning is not supported.
	Pin struct {
		ID int     `json:"id"`
		X  float64 `json:"x"`
		Y  float64 `json:"y"`
	}

	// Overlay owns the pin collection and the grid/pin-mode flags, and enforces
	// tool gating on every mutation.
	Overlay struct {
		events EventSink
		tools  ToolConfig

		pins      []Pin
		lastPinID int
		showGrid  bool
		pinMode   bool
	}
)

func NewOverlay(events EventSink, tools ToolConfig) *Overlay {
	return &Overlay{events: events, tools: tools}
}

func (o *Overlay) Pins() []Pin {
	pins := make([]Pin, len(o.pins))
	copy(pins, o.pins)
	return pins
}

func (o *Overlay) GridShown() bool   { return o.showGrid }
func (o *Overlay) PinMode() bool     { return o.pinMode }
func (o *Overlay) Tools() ToolConfig { return o.tools }

// AddPinAt places a pin at a normalized position. No-op unless the pin tool is
// enabled and pin mode is on. Ids grow monotonically and are never reused within
// a session, even after removals.
func (o *Overlay) AddPinAt(p Point) (Pin, bool) {
	if !(o.tools.Pins && o.pinMode) {
		return Pin{}, false
	}
	o.lastPinID++
	pin := Pin{ID: o.lastPinID, X: p.X, Y: p.Y}
	o.pins = append(o.pins, pin)
	o.events.Append(EventPinAdded, map[string]interface{}{"id": pin.ID, "x": pin.X, "y": pin.Y})
	return pin, true
}

// RemovePin filters the pin with the given id out of the collection, under the
// same gating as AddPinAt. Removing an id that is not present succeeds silently
// and leaves no trace in the event log.
func (o *Overlay) RemovePin(id int) bool {
	if !(o.tools.Pins && o.pinMode) {
		return false
	}
	kept := o.pins[:0]
	removed := false
	for _, pin := range o.pins {
		if pin.ID == id {
			removed = true
			continue
		}
		kept = append(kept, pin)
	}
	o.pins = kept
	if removed {
		o.events.Append(EventPinRemoved, map[string]interface{}{"id": id})
	}
	return true
}

// ToggleGrid flips grid visibility when the grid tool is enabled.
func (o *Overlay) ToggleGrid() bool {
	if !o.tools.Grid {
		return false
	}
	o.showGrid = !o.showGrid
	o.events.Append(EventGridToggled, map[string]interface{}{"enabled": o.showGrid})
	return true
}

// TogglePinMode flips pin placement mode when the pin tool is enabled.
func (o *Overlay) TogglePinMode() bool {
	if !o.tools.Pins {
		return false
	}
	o.pinMode = !o.pinMode
	o.events.Append(EventPinModeToggled, map[string]interface{}{"enabled": o.pinMode})
	return true
}

// DisablePinMode forces placement mode off without emitting an event. A submitted
// attempt is read-only going forward.
func (o *Overlay) DisablePinMode() { o.pinMode = false }

// Reset clears pins and flags for a new manifest/activity context.
func (o *Overlay) Reset(tools ToolConfig) {
	o.tools = tools
	o.pins = nil
	o.lastPinID = 0
	o.showGrid = false
	o.pinMode = false
}
