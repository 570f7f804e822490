package control

import "errors"

// Error kinds. Every error returned by this module wraps exactly one of these
// so callers can tell failures apart with errors.Is.
var (
	// ErrConfig is returned for invalid physical or sampling parameters.
	ErrConfig = errors.New("configuration error")
	// ErrSynthesis is returned when a gain can not be synthesized.
	ErrSynthesis = errors.New("synthesis error")
	// ErrInterface is returned for invalid invocations, e.g. wrong file count.
	ErrInterface = errors.New("interface error")
	// ErrIO is returned when generated artifacts can not be written.
	ErrIO = errors.New("io error")
)
