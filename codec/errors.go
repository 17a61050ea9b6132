package codec

import "github.com/pkg/errors"

// Sentinel errors returned by Decode* (spec §7 error taxonomy).
// Callers should use errors.Is against these; wrapped detail is preserved
// via github.com/pkg/errors so %+v on a logged error still yields a stack.
var (
	// ErrMalformedPayload means the bytes were not a well-formed map of the
	// expected shape (truncated, wrong msgpack type, missing required key).
	// Malformed payloads are absorbed by the caller: logged and dropped,
	// never fatal (spec §7).
	ErrMalformedPayload = errors.New("codec: malformed payload")

	// ErrSchemaMismatch means the payload decoded structurally but a field
	// held a value outside its known enum or range. Also absorbed.
	ErrSchemaMismatch = errors.New("codec: schema mismatch")

	// ErrVersionMismatch means protocol_version did not match the version
	// the decoder was configured to accept. Fatal: the caller must not
	// continue processing packets on this channel (spec §7).
	ErrVersionMismatch = errors.New("codec: protocol version mismatch")
)

func newMalformedError(format string, args ...any) error {
	return errors.Wrapf(ErrMalformedPayload, format, args...)
}

func newSchemaError(format string, args ...any) error {
	return errors.Wrapf(ErrSchemaMismatch, format, args...)
}

func newVersionError(wire, want uint32) error {
	return errors.Wrapf(ErrVersionMismatch, "wire version %d, want %d", wire, want)
}
