package assistant

import "unicode/utf8"

// chunkDecoder converts byte reads to text without splitting a UTF-8
// sequence across two chunks.
type chunkDecoder struct {
	// tail holds the bytes of an incomplete trailing rune.
	tail []byte
}

// Decode returns the text for p, holding back an incomplete final rune.
func (d *chunkDecoder) Decode(p []byte) string {
	data := append(d.tail, p...)
	d.tail = nil

	cut := len(data)
	// A rune is at most utf8.UTFMax bytes, so only the last few can be incomplete.
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if !utf8.FullRune(data[i:]) {
			cut = i
		}
		break
	}
	if cut < len(data) {
		d.tail = append([]byte(nil), data[cut:]...)
	}
	return string(data[:cut])
}

// Flush returns any held-back bytes at end of stream.
func (d *chunkDecoder) Flush() string {
	rest := string(d.tail)
	d.tail = nil
	return rest
}
