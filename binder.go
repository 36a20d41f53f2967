package phi

import (
	"fmt"
	"log/slog"

	"github.com/mbridgescode/BridgesPhysiotherapyServices-sub002/internal/processor"
)

// FieldBinder converts record structs between their plaintext view and their
// persisted view. Fields are selected by `phi` struct tags; everything else
// passes through untouched, so upstream code only ever sees plaintext.
//
// The two views are the same struct: EncryptRecord seals tagged fields in
// place, DecryptRecord opens them in place. Values already holding envelopes
// are stored verbatim on encrypt, and a field that fails to open on decrypt
// keeps its raw envelope (with a structured warning) rather than failing the
// record.
type FieldBinder struct {
	proc *processor.Processor
}

// NewFieldBinder wires a binder over the codec. logger may be nil.
func NewFieldBinder(codec *Codec, logger *slog.Logger) *FieldBinder {
	return &FieldBinder{proc: processor.New(codec, logger)}
}

// EncryptRecord seals every tagged field of rec (a non-nil struct pointer)
// in place.
func (b *FieldBinder) EncryptRecord(rec any) error {
	return b.proc.EncryptStruct(rec)
}

// DecryptRecord opens every tagged field of rec in place. The returned error
// aggregates per-field failures; the record itself is always left in its most
// readable state.
func (b *FieldBinder) DecryptRecord(rec any) error {
	if err := b.proc.DecryptStruct(rec); err != nil {
		return fmt.Errorf("%w: %w", ErrFieldReadFailed, err)
	}
	return nil
}
