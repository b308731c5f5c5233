package storage

import (
	"bufio"
	"bytes"
	"fmt"
)

// Magic bytes for disk image format detection.
var (
	// vmdkMagic opens every sparse and stream-optimized VMDK extent: "KDMV".
	vmdkMagic = []byte{0x4b, 0x44, 0x4d, 0x56}

	// qcow2Magic is "QFI" followed by 0xfb.
	qcow2Magic = []byte{0x51, 0x46, 0x49, 0xfb}

	// mbrSignature sits at offset 510 of a bootable raw disk (MBR or GPT
	// protective MBR).
	mbrSignature = []byte{0x55, 0xaa}
)

// SniffFormat peeks at the head of a disk stream and reports its format
// without consuming any bytes.
func SniffFormat(r *bufio.Reader) (VolumeFormat, error) {
	head, err := r.Peek(4)
	if err != nil {
		return "", fmt.Errorf("disk stream too small to be valid image (< 4 bytes): %w", err)
	}

	switch {
	case bytes.Equal(head, vmdkMagic):
		return VolumeFormatVMDK, nil
	case bytes.Equal(head, qcow2Magic):
		return VolumeFormatQCOW2, nil
	}

	sector, err := r.Peek(512)
	if err != nil {
		return "", fmt.Errorf("disk stream too small for boot sector (< 512 bytes): %w", err)
	}
	if bytes.Equal(sector[510:512], mbrSignature) {
		return VolumeFormatRaw, nil
	}

	return "", fmt.Errorf("unsupported disk image: not vmdk or qcow2 and missing boot sector signature")
}
