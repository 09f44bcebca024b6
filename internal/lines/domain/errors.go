package lines

import "errors"

var (
	// ErrNotFound is returned when a line or a referenced station does not exist.
	ErrNotFound = errors.New("lines: not found")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("lines: validation failed")
	// ErrDuplicateSection is returned when the up/down pair is already registered on the line.
	ErrDuplicateSection = errors.New("lines: section already registered")
	// ErrDisconnectedSection is returned when the new up station is not the line terminus.
	ErrDisconnectedSection = errors.New("lines: section does not connect to the terminus")
	// ErrSingleSection is returned when removing from a line with one section.
	ErrSingleSection = errors.New("lines: line has a single section")
	// ErrInvalidRemovalTarget is returned when the station is not the terminus down station.
	ErrInvalidRemovalTarget = errors.New("lines: station is not the terminus")
	// ErrEmptyChain is returned when deriving stations from a chain with no sections.
	ErrEmptyChain = errors.New("lines: empty chain")
	// ErrNilLine is returned when saving a nil line.
	ErrNilLine = errors.New("lines: nil line")
)

// Error kinds reported to callers.
const (
	KindNotFound             = "not_found"
	KindValidation           = "validation"
	KindDuplicateSection     = "duplicate_section"
	KindDisconnectedSection  = "disconnected_section"
	KindSingleSection        = "single_section"
	KindInvalidRemovalTarget = "invalid_removal_target"
	KindEmptyChain           = "empty_chain"
	KindInternal             = "internal"
)

// ErrorKind maps an error to its stable kind string.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrDuplicateSection):
		return KindDuplicateSection
	case errors.Is(err, ErrDisconnectedSection):
		return KindDisconnectedSection
	case errors.Is(err, ErrSingleSection):
		return KindSingleSection
	case errors.Is(err, ErrInvalidRemovalTarget):
		return KindInvalidRemovalTarget
	case errors.Is(err, ErrEmptyChain):
		return KindEmptyChain
	default:
		return KindInternal
	}
}

// IsRuleViolation reports whether err is one of the chain policy errors.
func IsRuleViolation(err error) bool {
	return errors.Is(err, ErrDuplicateSection) ||
		errors.Is(err, ErrDisconnectedSection) ||
		errors.Is(err, ErrSingleSection) ||
		errors.Is(err, ErrInvalidRemovalTarget)
}
