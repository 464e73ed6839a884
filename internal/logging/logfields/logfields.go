// Package logfields defines common logging fields which are used across packages
package logfields

const (
	// LogSubsys is the field denoting the subsystem when logging
	LogSubsys = "subsys"

	// Hook is the symbolic name of a hook point
	Hook = "hook"

	// Function is the symbolic name of a foreign function
	Function = "function"

	// Register is the symbolic name of a captured register
	Register = "register"

	// Offset is a signed byte offset from the code section base
	Offset = "offset"

	// Address is an absolute address inside the foreign process
	Address = "address"

	// Gate is the address control is diverted to by a hook
	Gate = "gate"

	// Trampoline is the address of relocated original instructions
	Trampoline = "trampoline"

	// Version is the target binary version used to pick offsets
	Version = "version"

	// Path is a filesystem path
	Path = "path"

	// Arch is the target architecture
	Arch = "arch"

	// Feature is an optional piece of functionality depending on offsets
	Feature = "feature"
)
