package transfer

import (
	"hash/crc32"
	"io"
	"strconv"
)

// Checksum computes the CRC-32 (IEEE) of r.
func Checksum(r io.Reader) (uint32, error) {
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

// ChecksumBytes computes the CRC-32 (IEEE) of b.
func ChecksumBytes(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

func formatChecksum(sum uint32) string {
	return strconv.FormatUint(uint64(sum), 10)
}

func parseChecksum(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
