package journal

import (
	"encoding/binary"
	"hash/crc32"
)

func (r *record) encode() []byte {
	buf := make([]byte, RecordHeaderSize+len(r.data))

	binary.BigEndian.PutUint64(buf[0:8], r.lsn)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(r.data)))
	binary.BigEndian.PutUint32(buf[12:16], r.crc)
	copy(buf[16:], r.data)

	return buf
}

// calculateCRC computes the CRC32 over the LSN and the data
func calculateCRC(lsn uint64, data []byte) uint32 {
	hasher := crc32.NewIEEE()

	var lsnBytes [8]byte
	binary.BigEndian.PutUint64(lsnBytes[:], lsn)
	hasher.Write(lsnBytes[:])
	hasher.Write(data)

	return hasher.Sum32()
}
