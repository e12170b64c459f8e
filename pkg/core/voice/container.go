package voice

import "bytes"

// webmSignature is the EBML magic every WebM/Matroska stream starts with.
var webmSignature = []byte{0x1A, 0x45, 0xDF, 0xA3}

// IsValidContainer reports whether buf starts with the WebM container signature.
func IsValidContainer(buf []byte) bool {
	return bytes.HasPrefix(buf, webmSignature)
}
