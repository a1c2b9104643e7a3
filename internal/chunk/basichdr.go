package chunk

import (
	"bufio"

	"chunkcast/internal/rtmperr"
)

// readBasicHeader decodes the 1/2/3-byte chunk basic header: 2-bit
// format plus a chunk stream id encoded in 6, 14, or 22 bits depending
// on the first byte's low 6 bits (0 and 1 are the 2-byte and 3-byte
// escape values; CSIDs 2-63 fit directly in the first byte).
func readBasicHeader(r *bufio.Reader) (format, uint32, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	fmtBits := format((b0 >> 6) & 0x03)
	low := uint32(b0 & 0x3F)

	switch low {
	case 0:
		b1, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		return fmtBits, uint32(b1) + 64, nil
	case 1:
		b1, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		b2, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		return fmtBits, uint32(b2)*256 + uint32(b1) + 64, nil
	default:
		return fmtBits, low, nil
	}
}

// writeBasicHeader encodes the basic header, choosing the shortest valid
// encoding for the given CSID.
func writeBasicHeader(w *bufio.Writer, f format, csid uint32) error {
	switch {
	case csid >= 2 && csid <= 63:
		return w.WriteByte(byte(f)<<6 | byte(csid))
	case csid >= 64 && csid <= 319:
		if err := w.WriteByte(byte(f) << 6); err != nil {
			return err
		}
		return w.WriteByte(byte(csid - 64))
	case csid >= 64 && csid <= 65599:
		if err := w.WriteByte(byte(f)<<6 | 1); err != nil {
			return err
		}
		rel := csid - 64
		if err := w.WriteByte(byte(rel & 0xFF)); err != nil {
			return err
		}
		return w.WriteByte(byte(rel >> 8))
	default:
		return rtmperr.ErrChunkCSID
	}
}
