// Package errors defines the sentinel error taxonomy shared by every
// storage and recovery package in this module. A plain string type lets
// callers compare with == and still get a readable message, the same
// pattern the storage layer uses throughout (const Err... = Error("...")).
package errors

// Error is a sentinel error: comparable with ==, usable as a const.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// IO reports an underlying read/write/sync failure. Fatal to the
	// current statement; the caller must roll back its transaction.
	IO = Error("waldb: io error")

	// NotFound reports a missing file or page.
	NotFound = Error("waldb: not found")

	// TypeMismatch reports that a file's type byte does not match
	// what the opener expected.
	TypeMismatch = Error("waldb: file type mismatch")

	// DataFormat reports a corrupted record: unknown type byte,
	// impossible offset, or a transition across the wrong WAL file.
	// Fatal during recovery.
	DataFormat = Error("waldb: corrupt on-disk format")

	// InvalidFilePointer reports a dangling or empty-slot reference.
	InvalidFilePointer = Error("waldb: invalid file pointer")

	// PageFullOnUpdate reports that an update cannot fit in place.
	// The transaction may continue; tuple relocation is not attempted.
	PageFullOnUpdate = Error("waldb: page full on update")

	// TupleTooLarge reports that a requested insert exceeds the page
	// capacity outright.
	TupleTooLarge = Error("waldb: tuple too large for a page")

	// IllegalState reports API misuse, e.g. logging without an active
	// transaction. Always a programmer error.
	IllegalState = Error("waldb: illegal state")

	// EmptyTuple reports an attempt to insert a zero-length tuple.
	EmptyTuple = Error("waldb: tuple cannot be empty")

	// NotEnoughSpace reports that a page lacks room for an otherwise
	// valid operation; callers may retry elsewhere (e.g. the next
	// free-list candidate).
	NotEnoughSpace = Error("waldb: not enough space on page")

	// NoFreeSlot reports that a page has no reusable empty slot and
	// no room to append one.
	NoFreeSlot = Error("waldb: could not find a free slot")
)
