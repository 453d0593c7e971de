package rhi

import (
	"encoding/binary"
	"fmt"
)

// ExistentialHeaderSize is the size of the (RTTI id, witness-table id) header
// that precedes the payload of an interface-typed field.
const ExistentialHeaderSize = 16

// witnessTypeName is the structural key name of witness-table ids issued by
// the default reflector.
const witnessTypeName = "__Witness"

// WriteExistentialHeader writes the RTTI id and witness-table id of an
// existential value at the start of dst, little-endian.
func WriteExistentialHeader(dst []byte, rtti, witness uint64) error {
	if len(dst) < ExistentialHeaderSize {
		return fmt.Errorf("%w: existential header needs %d bytes, have %d",
			ErrInvalidArgument, ExistentialHeaderSize, len(dst))
	}
	binary.LittleEndian.PutUint64(dst[0:8], rtti)
	binary.LittleEndian.PutUint64(dst[8:16], witness)
	return nil
}

// ReadExistentialHeader decodes a header written by WriteExistentialHeader.
func ReadExistentialHeader(src []byte) (rtti, witness uint64, err error) {
	if len(src) < ExistentialHeaderSize {
		return 0, 0, fmt.Errorf("%w: existential header needs %d bytes, have %d",
			ErrInvalidArgument, ExistentialHeaderSize, len(src))
	}
	return binary.LittleEndian.Uint64(src[0:8]), binary.LittleEndian.Uint64(src[8:16]), nil
}

// internReflector derives witness-table ids from the device interner. It is
// used when no Reflector is configured.
type internReflector struct {
	interner *TypeInterner
}

func (r internReflector) WitnessID(concrete, iface TypeReflection) (uint64, error) {
	if concrete == nil || iface == nil {
		return 0, invalidArgf("witness for nil type")
	}
	id := r.interner.InternStructural(witnessTypeName, []ComponentID{
		r.interner.InternType(concrete),
		r.interner.InternType(iface),
	})
	if id == InvalidComponentID {
		return 0, ErrDeviceReleased
	}
	return uint64(id), nil
}

// writeExistentialHeader fills the header for a value of type concrete stored
// in a field of interface type iface, at dst[0:16].
func (d *Device) writeExistentialHeader(dst []byte, concrete, iface TypeReflection) error {
	rtti := d.interner.InternType(concrete)
	if rtti == InvalidComponentID {
		return ErrDeviceReleased
	}
	witness, err := d.reflector.WitnessID(concrete, iface)
	if err != nil {
		return fmt.Errorf("rhi: witness table for %s as %s: %w", concrete.FullName(), iface.FullName(), err)
	}
	return WriteExistentialHeader(dst, uint64(rtti), witness)
}
