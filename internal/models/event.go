package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of a captured event. The values match the
// event_type strings used in the flushed timeline.
type Kind string

const (
	KindKeyPress      Kind = "key_press"
	KindKeyRelease    Kind = "key_release"
	KindMouseClick    Kind = "mouse_click"
	KindMouseScroll   Kind = "mouse_scroll"
	KindWindowChange  Kind = "window_change"
	KindTextSelection Kind = "text_selection"
)

// Valid reports whether k is one of the known event kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindKeyPress, KindKeyRelease, KindMouseClick, KindMouseScroll,
		KindWindowChange, KindTextSelection:
		return true
	}
	return false
}

// Modifiers holds the state of the modifier keys at capture time.
type Modifiers struct {
	Shift    bool `json:"shift"`
	Control  bool `json:"control"`
	Option   bool `json:"option"`
	Command  bool `json:"command"`
	Fn       bool `json:"fn"`
	CapsLock bool `json:"capslock"`
}

// Active returns the names of the pressed modifiers in a fixed order.
func (m Modifiers) Active() []string {
	var active []string
	if m.Shift {
		active = append(active, "shift")
	}
	if m.Control {
		active = append(active, "control")
	}
	if m.Option {
		active = append(active, "option")
	}
	if m.Command {
		active = append(active, "command")
	}
	if m.Fn {
		active = append(active, "fn")
	}
	if m.CapsLock {
		active = append(active, "capslock")
	}
	return active
}

// String renders the active modifiers as "shift+command" style text.
func (m Modifiers) String() string {
	return strings.Join(m.Active(), "+")
}

// KeyPayload carries the fields specific to key press/release events.
type KeyPayload struct {
	Code      int       `json:"code"`
	Name      string    `json:"name"`
	Char      string    `json:"char,omitempty"`
	Modifiers Modifiers `json:"modifiers"`
}

// ClickPayload carries the fields specific to mouse click events.
// Coordinates are absolute screen coordinates.
type ClickPayload struct {
	Button string  `json:"button"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// ScrollPayload carries the fields specific to mouse scroll events.
type ScrollPayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DeltaX float64 `json:"delta_x"`
	DeltaY float64 `json:"delta_y"`
}

// WindowPayload carries the fields specific to foreground window changes.
type WindowPayload struct {
	App       string `json:"app"`
	Title     string `json:"title"`
	PID       int32  `json:"pid,omitempty"`
	PrevApp   string `json:"prev_app,omitempty"`
	PrevTitle string `json:"prev_title,omitempty"`
}

// SelectionPayload carries the fields specific to text selection events.
type SelectionPayload struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"` // e.g. "accessibility", "clipboard"
}

// Event is one immutable observation of a user action. Sequence is assigned
// by the timeline bus at ingest and is the ordering truth; Timestamp is the
// wall-clock capture time carried for display and analysis. Exactly one of
// the payload pointers is set, matching Kind. Screenshot starts empty and may
// be set once, asynchronously, through the bus.
type Event struct {
	Sequence   uint64            `json:"sequence"`
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Kind       Kind              `json:"kind"`
	Key        *KeyPayload       `json:"key,omitempty"`
	Click      *ClickPayload     `json:"click,omitempty"`
	Scroll     *ScrollPayload    `json:"scroll,omitempty"`
	Window     *WindowPayload    `json:"window,omitempty"`
	Selection  *SelectionPayload `json:"selection,omitempty"`
	Screenshot string            `json:"screenshot,omitempty"`
}

func newEvent(at time.Time, kind Kind) Event {
	return Event{
		ID: uuid.New().String(),
		// Microsecond resolution; UTC so serialized events round-trip exactly.
		Timestamp: at.UTC().Truncate(time.Microsecond),
		Kind:      kind,
	}
}

// NewKeyPress builds a key press event.
func NewKeyPress(at time.Time, code int, name, char string, mods Modifiers) *Event {
	e := newEvent(at, KindKeyPress)
	e.Key = &KeyPayload{Code: code, Name: name, Char: char, Modifiers: mods}
	return &e
}

// NewKeyRelease builds a key release event.
func NewKeyRelease(at time.Time, code int, name, char string, mods Modifiers) *Event {
	e := newEvent(at, KindKeyRelease)
	e.Key = &KeyPayload{Code: code, Name: name, Char: char, Modifiers: mods}
	return &e
}

// NewMouseClick builds a mouse click event.
func NewMouseClick(at time.Time, button string, x, y float64) *Event {
	e := newEvent(at, KindMouseClick)
	e.Click = &ClickPayload{Button: button, X: x, Y: y}
	return &e
}

// NewMouseScroll builds a mouse scroll event.
func NewMouseScroll(at time.Time, x, y, deltaX, deltaY float64) *Event {
	e := newEvent(at, KindMouseScroll)
	e.Scroll = &ScrollPayload{X: x, Y: y, DeltaX: deltaX, DeltaY: deltaY}
	return &e
}

// NewWindowChange builds a foreground window change event.
func NewWindowChange(at time.Time, app, title string, pid int32, prevApp, prevTitle string) *Event {
	e := newEvent(at, KindWindowChange)
	e.Window = &WindowPayload{App: app, Title: title, PID: pid, PrevApp: prevApp, PrevTitle: prevTitle}
	return &e
}

// NewTextSelection builds a text selection event.
func NewTextSelection(at time.Time, text, source string) *Event {
	e := newEvent(at, KindTextSelection)
	e.Selection = &SelectionPayload{Text: text, Source: source}
	return &e
}

// CSVHeader is the fixed column set for CSV timelines. Kind-specific columns
// are left empty for events of other kinds.
func CSVHeader() []string {
	return []string{
		"sequence", "id", "timestamp", "kind",
		"key_code", "key_name", "key_char", "modifiers",
		"button", "x", "y", "scroll_dx", "scroll_dy",
		"app_name", "window_title", "selection", "selection_source",
		"screenshot",
	}
}

// CSVRecord renders the event as one row matching CSVHeader.
func (e *Event) CSVRecord() []string {
	rec := make([]string, 18)
	rec[0] = strconv.FormatUint(e.Sequence, 10)
	rec[1] = e.ID
	rec[2] = e.Timestamp.Format(time.RFC3339Nano)
	rec[3] = string(e.Kind)
	switch {
	case e.Key != nil:
		rec[4] = strconv.Itoa(e.Key.Code)
		rec[5] = e.Key.Name
		rec[6] = e.Key.Char
		rec[7] = e.Key.Modifiers.String()
	case e.Click != nil:
		rec[8] = e.Click.Button
		rec[9] = formatCoord(e.Click.X)
		rec[10] = formatCoord(e.Click.Y)
	case e.Scroll != nil:
		rec[9] = formatCoord(e.Scroll.X)
		rec[10] = formatCoord(e.Scroll.Y)
		rec[11] = formatCoord(e.Scroll.DeltaX)
		rec[12] = formatCoord(e.Scroll.DeltaY)
	case e.Window != nil:
		rec[13] = e.Window.App
		rec[14] = e.Window.Title
	case e.Selection != nil:
		rec[15] = e.Selection.Text
		rec[16] = e.Selection.Source
	}
	rec[17] = e.Screenshot
	return rec
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
