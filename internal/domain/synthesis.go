package domain

import "time"

// TextChunk is a bounded-size contiguous slice of an article's normalized
// content. Concatenating all chunks in Index order reproduces the content
// exactly.
type TextChunk struct {
	Index   int
	Text    string
	ByteLen int
	HardCut bool // split inside a sentence because it alone exceeded the limit
}

// AudioSegment is the synthesized audio for one TextChunk. It lives only for
// the duration of a synthesis job and is consumed by the assembler.
type AudioSegment struct {
	Index    int
	Data     []byte
	Duration time.Duration
}
