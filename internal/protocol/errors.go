package protocol

import "errors"

var (
	ErrMissingArgument = errors.New("missing argument")
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrUnsupported     = errors.New("unsupported domain condition")
	ErrFault           = errors.New("handler fault")
)

const (
	// Protocol/transport validation.
	CodeProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Routing.
	CodeUnknownEntity = "E_UNKNOWN_ENTITY"
	CodeWorldBusy     = "E_WORLD_BUSY"

	// Handler layer.
	CodeBadRequest  = "E_BAD_REQUEST"
	CodeMissingArg  = "E_MISSING_ARG"
	CodeUnsupported = "E_UNSUPPORTED"
	CodeFault       = "E_FAULT"
	CodeInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	CodeProtoBadRequest: {},
	CodeUnknownEntity:   {},
	CodeWorldBusy:       {},
	CodeBadRequest:      {},
	CodeMissingArg:      {},
	CodeUnsupported:     {},
	CodeFault:           {},
	CodeInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps an error to its wire code. A nil error has no code.
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingArgument):
		return CodeMissingArg
	case errors.Is(err, ErrUnknownEntity):
		return CodeUnknownEntity
	case errors.Is(err, ErrUnsupported):
		return CodeUnsupported
	case errors.Is(err, ErrFault):
		return CodeFault
	default:
		return CodeInternal
	}
}
