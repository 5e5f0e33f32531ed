package payload

import "encoding/hex"

// HexEncode returns the lowercase hex form of b.
func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// HexDecode parses a hex string as produced by HexEncode.
func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
