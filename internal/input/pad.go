// Package input decodes controller state captured at the input hook.
package input

import (
	"strings"
)

// PadData is the button bitmask of one frame.
type PadData uint64

// Button bits as laid out by the host input system.
const (
	Y               PadData = 0x1
	B               PadData = 0x2
	A               PadData = 0x4
	X               PadData = 0x8
	L               PadData = 0x10
	R               PadData = 0x20
	ZL              PadData = 0x40
	ZR              PadData = 0x80
	Minus           PadData = 0x100
	Plus            PadData = 0x200
	LeftStickClick  PadData = 0x400
	RightStickClick PadData = 0x800
	DpadUp          PadData = 0x1000
	DpadRight       PadData = 0x2000
	DpadDown        PadData = 0x4000
	DpadLeft        PadData = 0x8000
	LeftSL          PadData = 0x80000
	LeftSR          PadData = 0x100000
	RightSL         PadData = 0x200000
	RightSR         PadData = 0x400000
	LeftStickUp     PadData = 0x800000
	LeftStickRight  PadData = 0x1000000
	LeftStickDown   PadData = 0x2000000
	LeftStickLeft   PadData = 0x4000000
	RightStickUp    PadData = 0x8000000
	RightStickRight PadData = 0x10000000
	RightStickDown  PadData = 0x20000000
	RightStickLeft  PadData = 0x40000000
)

// Chords recognised by the overlay.
const (
	ToggleOverlay = L | LeftStickClick
	ReturnToTitle = L | R | A | Plus
)

// Directions used for list navigation.
const (
	Down = LeftStickDown | DpadDown
	Up   = LeftStickUp | DpadUp
)

var names = []struct {
	bit  PadData
	name string
}{
	{Y, "Y"}, {B, "B"}, {A, "A"}, {X, "X"}, {L, "L"}, {R, "R"},
	{ZL, "ZL"}, {ZR, "ZR"}, {Minus, "Minus"}, {Plus, "Plus"},
	{LeftStickClick, "LStick"}, {RightStickClick, "RStick"},
	{DpadUp, "Up"}, {DpadRight, "Right"}, {DpadDown, "Down"}, {DpadLeft, "Left"},
	{LeftSL, "LeftSL"}, {LeftSR, "LeftSR"}, {RightSL, "RightSL"}, {RightSR, "RightSR"},
	{LeftStickUp, "LStickUp"}, {LeftStickRight, "LStickRight"},
	{LeftStickDown, "LStickDown"}, {LeftStickLeft, "LStickLeft"},
	{RightStickUp, "RStickUp"}, {RightStickRight, "RStickRight"},
	{RightStickDown, "RStickDown"}, {RightStickLeft, "RStickLeft"},
}

// Contains reports whether every button of other is held.
func (p PadData) Contains(other PadData) bool {
	return p&other == other
}

// Any reports whether at least one button of other is held.
func (p PadData) Any(other PadData) bool {
	return p&other != 0
}

// IsEmpty reports whether no button is held.
func (p PadData) IsEmpty() bool {
	return p == 0
}

func (p PadData) String() string {
	if p == 0 {
		return "none"
	}
	var parts []string
	for _, n := range names {
		if p&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "+")
}
