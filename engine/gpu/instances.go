package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
)

// InstanceRecordSize is the byte size of one native instance descriptor.
// Both backends share the layout: a 3x4 row-major transform, a 24-bit id
// packed with an 8-bit mask, a 24-bit hit group offset packed with 8 bits
// of flags, and the 64-bit reference of the bottom-level container.
const InstanceRecordSize = 64

// ScratchWriter is implemented by allocators whose memory is host visible.
// Top-level containers need it to upload their instance records.
type ScratchWriter interface {
	WriteScratch(entry MemoryEntry, data []byte) error
}

// EncodeInstances writes the instance records of a top-level container.
// reference resolves the native address or handle of a bottom-level
// container and flags translates the instance flags.
func EncodeInstances(instances []AccelerationInstance, reference func(*AccelerationContainer) uint64, flags func(InstanceFlags) uint8) ([]byte, error) {
	out := make([]byte, len(instances)*InstanceRecordSize)
	for i := range instances {
		inst := &instances[i]
		if inst.InstanceID >= 1<<24 {
			return nil, fmt.Errorf("instance id %d does not fit in 24 bits", inst.InstanceID)
		}
		if inst.InstanceOffset >= 1<<24 {
			return nil, fmt.Errorf("instance offset %d does not fit in 24 bits", inst.InstanceOffset)
		}

		rec := out[i*InstanceRecordSize : (i+1)*InstanceRecordSize]
		for j, v := range inst.TransformRows() {
			binary.LittleEndian.PutUint32(rec[j*4:], math.Float32bits(v))
		}
		binary.LittleEndian.PutUint32(rec[48:], inst.InstanceID|uint32(inst.Mask)<<24)
		binary.LittleEndian.PutUint32(rec[52:], inst.InstanceOffset|uint32(flags(inst.Flags))<<24)
		binary.LittleEndian.PutUint64(rec[56:], reference(inst.GeometryContainer))
	}
	return out, nil
}

// UploadInstances allocates the instance buffer of a top-level container
// and fills it through the allocator.
func (c *AccelerationContainer) UploadInstances(allocator ScratchAllocator, records []byte) error {
	writer, ok := allocator.(ScratchWriter)
	if !ok {
		return fmt.Errorf("allocator of %s cannot write instance records", c.Label)
	}
	entry, err := allocator.AllocateScratch(c.Label+"-instances", uint64(len(records)), BufferUsageAccelerationContainer)
	if err != nil {
		return fmt.Errorf("failed to allocate instance buffer of %s: %w", c.Label, err)
	}
	if err := writer.WriteScratch(entry, records); err != nil {
		allocator.ReleaseScratch(entry)
		return fmt.Errorf("failed to write instance buffer of %s: %w", c.Label, err)
	}
	c.InstanceBuffer = entry
	return nil
}
