package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
)

// Block layout:
//   - Header (16 bytes): numDims(2), reserved(2), numEvents(4), crc(4), payloadLen(4)
//   - Payload: numEvents records of
//     signal(4) errorSquared(4) runIndex(2) detectorID(4) center(4*numDims)
//
// The crc covers the payload only. All fields are little endian.
const (
	BlockHeaderSize = 16
	eventFixedSize  = 14
)

var ErrCorruptBlock = errors.New("corrupt event block")

// EventRecordSize is the encoded size of one event with numDims coordinates.
func EventRecordSize(numDims int) int {
	return eventFixedSize + 4*numDims
}

// EncodedSize is the number of bytes EncodeEventBlock produces for b.
func EncodedSize(b EventBlock) int {
	return BlockHeaderSize + len(b.Events)*EventRecordSize(b.NumDims)
}

// EncodeEventBlock serializes a block. Every event must carry exactly b.NumDims coordinates.
func EncodeEventBlock(b EventBlock) ([]byte, error) {
	if b.NumDims < 0 || b.NumDims > math.MaxUint16 {
		return nil, fmt.Errorf("invalid dimensionality %d", b.NumDims)
	}
	buf := make([]byte, EncodedSize(b))
	offset := BlockHeaderSize

	for i, ev := range b.Events {
		if len(ev.Center) != b.NumDims {
			return nil, fmt.Errorf("event %d has %d coordinates, block has %d dimensions", i, len(ev.Center), b.NumDims)
		}
		binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(ev.Signal))
		offset += 4
		binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(ev.ErrorSquared))
		offset += 4
		binary.LittleEndian.PutUint16(buf[offset:], ev.RunIndex)
		offset += 2
		binary.LittleEndian.PutUint32(buf[offset:], ev.DetectorID)
		offset += 4
		for _, c := range ev.Center {
			binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(c))
			offset += 4
		}
	}

	payload := buf[BlockHeaderSize:]
	binary.LittleEndian.PutUint16(buf[0:], uint16(b.NumDims))
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(b.Events)))
	binary.LittleEndian.PutUint32(buf[8:], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(payload)))

	return buf, nil
}

// DecodeEventBlock deserializes a block produced by EncodeEventBlock.
func DecodeEventBlock(data []byte) (EventBlock, error) {
	if len(data) < BlockHeaderSize {
		return EventBlock{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptBlock, len(data))
	}

	numDims := int(binary.LittleEndian.Uint16(data[0:]))
	numEvents := int(binary.LittleEndian.Uint32(data[4:]))
	crc := binary.LittleEndian.Uint32(data[8:])
	payloadLen := int(binary.LittleEndian.Uint32(data[12:]))

	if payloadLen != numEvents*EventRecordSize(numDims) || BlockHeaderSize+payloadLen > len(data) {
		return EventBlock{}, fmt.Errorf("%w: payload length %d does not match %d events of %d dims",
			ErrCorruptBlock, payloadLen, numEvents, numDims)
	}

	payload := data[BlockHeaderSize : BlockHeaderSize+payloadLen]
	if crc32.ChecksumIEEE(payload) != crc {
		return EventBlock{}, fmt.Errorf("%w: checksum mismatch", ErrCorruptBlock)
	}

	block := EventBlock{NumDims: numDims, Events: make([]MDEvent, numEvents)}
	offset := 0
	for i := 0; i < numEvents; i++ {
		ev := MDEvent{Center: make([]float32, numDims)}
		ev.Signal = math.Float32frombits(binary.LittleEndian.Uint32(payload[offset:]))
		offset += 4
		ev.ErrorSquared = math.Float32frombits(binary.LittleEndian.Uint32(payload[offset:]))
		offset += 4
		ev.RunIndex = binary.LittleEndian.Uint16(payload[offset:])
		offset += 2
		ev.DetectorID = binary.LittleEndian.Uint32(payload[offset:])
		offset += 4
		for d := 0; d < numDims; d++ {
			ev.Center[d] = math.Float32frombits(binary.LittleEndian.Uint32(payload[offset:]))
			offset += 4
		}
		block.Events[i] = ev
	}

	return block, nil
}
