package posix

import (
	"golang.org/x/sys/unix"

	"github.com/rbh-project/rbh4/rbh"
)

// idFromHandle mints a POSIX Id from the kernel file handle NameToHandleAt
// returns, the Go equivalent of the original's id_from_fd/name_to_handle_at
// pairing (see original_source/librobinhood/src/backends/posix/*). The raw
// handle bytes round-trip through OpenByHandleAt in rbh/gc's liveness probe.
func idFromHandle(path string) (rbh.Id, error) {
	handle, mountID, err := unix.NameToHandleAt(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW)
	if err != nil {
		return rbh.Id{}, err
	}
	encoded := encodeHandle(int32(mountID), handle)
	return rbh.NewID(rbh.OriginPOSIX, encoded)
}

// encodeHandle packs the mount id, the handle's type, and its own bytes
// into one payload: two 4-byte little-endian words (mount id, handle type)
// followed by the handle bytes, so a consumer can reconstruct the exact
// unix.FileHandle NameToHandleAt produced and call OpenByHandleAt against
// the right mount fd (see DecodeHandle/ReconstructFileHandle, used by
// rbh/enrich and rbh/gc).
func encodeHandle(mountID int32, handle unix.FileHandle) []byte {
	hb := handle.Bytes()
	out := make([]byte, 8+len(hb))
	putLE32(out[0:4], uint32(mountID))
	putLE32(out[4:8], uint32(handle.Type()))
	copy(out[8:], hb)
	return out
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// DecodeHandle splits an Id minted by idFromHandle back into its mount id
// and raw handle bytes (type included at the front), the inverse of
// encodeHandle. Use ReconstructFileHandle to turn handleBytes back into a
// unix.FileHandle.
func DecodeHandle(id rbh.Id) (mountID int32, handleBytes []byte, ok bool) {
	b := id.Bytes()
	if id.Origin != rbh.OriginPOSIX || len(b) < 8 {
		return 0, nil, false
	}
	mountID = int32(getLE32(b[0:4]))
	return mountID, b[4:], true
}

// ReconstructFileHandle rebuilds a unix.FileHandle from the (type, bytes)
// pair produced by DecodeHandle's trailing slice.
func ReconstructFileHandle(encoded []byte) (unix.FileHandle, bool) {
	if len(encoded) < 4 {
		return unix.FileHandle{}, false
	}
	handleType := int32(getLE32(encoded[0:4]))
	return unix.NewFileHandle(handleType, encoded[4:]), true
}
