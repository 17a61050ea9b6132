// Package codec implements the self-describing binary wire format shared by
// the action and observation channels (spec §4.A, §6). Payloads are
// MessagePack maps keyed by lower-snake-case field names, built directly on
// top of github.com/tinylib/msgp/msgp's low-level Writer/Reader rather than
// struct-tag-driven codegen, since every packet must remain a loosely typed,
// forward-compatible map rather than a fixed schema.
package codec

// InputType tags whether an InputEvent targets a keyboard key or a mouse
// button, mirroring the wire enum of spec §6.
type InputType int32

const (
	// InputTypeKey identifies a keyboard key code.
	InputTypeKey InputType = 0
	// InputTypeMouse identifies a mouse button code.
	InputTypeMouse InputType = 1
)

// String renders the input type for log fields.
func (t InputType) String() string {
	switch t {
	case InputTypeKey:
		return "key"
	case InputTypeMouse:
		return "mouse"
	default:
		return "unknown"
	}
}

// inputTypeFromInt validates a raw wire value into an InputType.
func inputTypeFromInt(v int64) (InputType, error) {
	switch InputType(v) {
	case InputTypeKey, InputTypeMouse:
		return InputType(v), nil
	default:
		return 0, newSchemaError("inputs[].type out of range: %d", v)
	}
}

// GlfwAction mirrors the GLFW press/release constants used on the wire
// (spec §6): 0 = RELEASE, 1 = PRESS. REPEAT is intentionally not modeled.
type GlfwAction int32

const (
	// ActionRelease signals a key/button release.
	ActionRelease GlfwAction = 0
	// ActionPress signals a key/button press.
	ActionPress GlfwAction = 1
)

// String renders the action for log fields.
func (a GlfwAction) String() string {
	if a == ActionPress {
		return "press"
	}
	return "release"
}

func glfwActionFromInt(v int64) (GlfwAction, error) {
	switch GlfwAction(v) {
	case ActionRelease, ActionPress:
		return GlfwAction(v), nil
	default:
		return 0, newSchemaError("inputs[].action out of range: %d", v)
	}
}

// InputEvent is a single key or mouse transition to apply, in order, before
// the rest of an ActionPacket's tick is processed.
type InputEvent struct {
	Type   InputType
	Code   int32
	Action GlfwAction
}

// CursorPoint is one absolute cursor coordinate to apply, in order.
type CursorPoint struct {
	X float64
	Y float64
}

// ActionPacket is the outbound agent -> simulator message (spec §3).
// Sequence is assigned exactly once by the Controller at enqueue time and
// must never be set by callers.
type ActionPacket struct {
	ProtocolVersion uint32
	Sequence        uint64
	Commands        []string
	Stop            bool
	ClearInput      bool
	Inputs          []InputEvent
	CursorPos       []CursorPoint
}

// CursorMode mirrors the GLFW cursor mode constants (spec §6): 0 = NORMAL,
// 1 = DISABLED. The underlying GLFW values (212993 / 212995) are not used on
// the wire; this stable small-integer encoding is what mcio-core commits to.
type CursorMode int32

const (
	// CursorModeNormal means the cursor is visible and unconstrained.
	CursorModeNormal CursorMode = 0
	// CursorModeDisabled means the cursor is hidden and captured (typical
	// first-person camera control).
	CursorModeDisabled CursorMode = 1
)

func cursorModeFromInt(v int64) (CursorMode, error) {
	switch CursorMode(v) {
	case CursorModeNormal, CursorModeDisabled:
		return CursorMode(v), nil
	default:
		return 0, newSchemaError("cursor_mode out of range: %d", v)
	}
}

// ObservationMode reports whether the simulator is streaming freely
// (ASYNC) or waiting on the sequence-matched step loop (SYNC).
type ObservationMode string

const (
	// ModeSync indicates the simulator paces itself to the synchronous
	// step/reset loop.
	ModeSync ObservationMode = "SYNC"
	// ModeAsync indicates the simulator streams continuously.
	ModeAsync ObservationMode = "ASYNC"
)

// FrameCompression tags how ObservationPacket.Frame is compressed so decode
// remains self-describing without an out-of-band content-type header.
type FrameCompression int32

const (
	// FrameCompressionNone means Frame holds raw RGB bytes.
	FrameCompressionNone FrameCompression = 0
	// FrameCompressionZstd means Frame holds a zstd-compressed RGB buffer.
	FrameCompressionZstd FrameCompression = 1
)

// InventorySlot is one occupied or empty inventory slot.
type InventorySlot struct {
	SlotIndex int32
	ItemID    string
	Count     int32
}

// Vec2I is an integer 2-vector (cursor position).
type Vec2I struct {
	X int32
	Y int32
}

// Vec3F is a float 3-vector (player position).
type Vec3F struct {
	X float64
	Y float64
	Z float64
}

// ObservationPacket is the inbound simulator -> agent message (spec §3).
type ObservationPacket struct {
	ProtocolVersion     uint32
	Sequence            uint64
	LastActionSequence  uint64
	Mode                ObservationMode
	Frame               []byte
	FrameCompression    FrameCompression
	FrameWidth          int32
	FrameHeight         int32
	FrameType           string
	CursorMode          CursorMode
	CursorPos           Vec2I
	PlayerPos           Vec3F
	PlayerPitch         float64
	PlayerYaw           float64
	Health              float64
	InventoryMain       []InventorySlot
	InventoryArmor      []InventorySlot
	InventoryOffhand    []InventorySlot
	Message             string
}

// defaultFrameType is applied when an encoder omits frame_type.
const defaultFrameType = "RAW"
