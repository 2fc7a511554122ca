package storage

import "bytes"

// sniffLen is how many leading bytes the intake inspects.
const sniffLen = 512

// matchSignature reports whether the leading bytes look like the format a
// dotted extension claims. Truncated content and extensions without a known
// signature are accepted; the sniff only rejects uploads whose header
// contradicts the claimed container.
func matchSignature(ext string, head []byte) bool {
	if len(head) < 12 {
		return true
	}

	switch ext {
	case ".mp4", ".m4v", ".m4a", ".mov":
		// ISO BMFF: "ftyp" at offset 4.
		return bytes.Equal(head[4:8], []byte("ftyp"))
	case ".mkv", ".webm":
		// EBML header.
		return bytes.Equal(head[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3})
	case ".avi":
		return bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("AVI "))
	case ".wav":
		return bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE"))
	case ".flv":
		return bytes.Equal(head[0:3], []byte("FLV"))
	case ".flac":
		return bytes.Equal(head[0:4], []byte("fLaC"))
	case ".ogg", ".opus":
		return bytes.Equal(head[0:4], []byte("OggS"))
	case ".mp3":
		// ID3 tag or a bare MPEG frame sync.
		return bytes.Equal(head[0:3], []byte("ID3")) ||
			(head[0] == 0xFF && head[1]&0xE0 == 0xE0)
	case ".aac":
		// ADTS frame sync.
		return head[0] == 0xFF && head[1]&0xF0 == 0xF0
	case ".ts":
		// MPEG-TS sync byte.
		return head[0] == 0x47
	case ".wma":
		// ASF header GUID prefix.
		return bytes.Equal(head[0:4], []byte{0x30, 0x26, 0xB2, 0x75})
	default:
		return true
	}
}
