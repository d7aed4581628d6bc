package rpc

import "github.com/roadrunner-server/errors"

// Error classes, mirroring roadrunner-server/errors' Kind style so callers
// can branch on class instead of matching strings.
const (
	KindResolution errors.Kind = iota + 1
	KindTransport
	KindDisposed
	KindRemote
)

// Sentinel messages for the resolution/transport/disposed taxonomy. Remote
// errors carry whatever string the peer sent and are constructed inline.
var (
	ErrUnknownObject     = errors.E(errors.Str("unknown object id"), KindResolution)
	ErrUnknownFunction   = errors.E(errors.Str("unknown function id"), KindResolution)
	ErrUnknownClass      = errors.E(errors.Str("unknown class id"), KindResolution)
	ErrNotCallable       = errors.E(errors.Str("property is not a function"), KindResolution)
	ErrNoCtor            = errors.E(errors.Str("class exposes no constructor"), KindResolution)
	ErrMissingDescriptor = errors.E(errors.Str("no descriptor for remote entity"), KindResolution)

	ErrNoSyncReply   = errors.E(errors.Str("no sync reply received"), KindTransport)
	ErrMissingMarker = errors.E(errors.Str("message missing rpc marker"), KindTransport)
	ErrNoTransport   = errors.E(errors.Str("channel has no usable transport for this call mode"), KindTransport)

	ErrDisposed = errors.E(errors.Str("disposed"), KindDisposed)
)

// newRemoteError wraps a string that crossed the wire from the peer's
// `{success:false, result:<string>}` / `fn_reply` error envelope. Per
// spec.md §7, remote errors lose their structured identity by design: only
// the message survives.
func newRemoteError(op errors.Op, msg string) error {
	return errors.E(op, KindRemote, errors.Str(msg))
}
