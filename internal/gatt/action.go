package gatt

// Action is a semantic command for a button-pad style peripheral that
// accepts single-byte instructions on its command characteristic.
type Action int

const (
	ActionUp Action = iota + 1
	ActionDown
	ActionLeft
	ActionRight
	ActionReset
)

// String returns the human-readable name of the action.
func (a Action) String() string {
	switch a {
	case ActionUp:
		return "up"
	case ActionDown:
		return "down"
	case ActionLeft:
		return "left"
	case ActionRight:
		return "right"
	case ActionReset:
		return "reset"
	default:
		return "unknown"
	}
}

// CommandSentinel is the wire byte produced for actions outside the known
// set. Unrecognized actions degrade to the sentinel instead of failing so
// best-effort UI flows stay non-blocking.
const CommandSentinel byte = 0x00

// Encode maps an action to its single-byte wire payload:
// up=0x01, down=0x02, left=0x03, right=0x04, reset=0x05.
func Encode(a Action) byte {
	switch a {
	case ActionUp:
		return 0x01
	case ActionDown:
		return 0x02
	case ActionLeft:
		return 0x03
	case ActionRight:
		return 0x04
	case ActionReset:
		return 0x05
	default:
		return CommandSentinel
	}
}
