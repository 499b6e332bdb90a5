package wire

import "hash/crc32"

// Checksum returns the IEEE-802.3 CRC32 (reflected polynomial, initial
// value 0, no post-inversion beyond what the Ethernet definition already
// applies) of data. This is the checksum carried in every CORTEX frame
// header.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
