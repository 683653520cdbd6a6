package synthesis

import (
	"encoding/binary"
	"fmt"
	"time"
)

// WAVFormat describes the PCM parameters of a LINEAR16 stream.
type WAVFormat struct {
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

const wavHeaderLen = 44

// DecodeWAV parses a RIFF/WAVE container and returns its format and raw PCM
// frames. Only uncompressed PCM (audio format 1) is supported, which is what
// the synthesis API emits for LINEAR16.
func DecodeWAV(b []byte) (WAVFormat, []byte, error) {
	var f WAVFormat
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return f, nil, fmt.Errorf("not a RIFF/WAVE stream")
	}

	var (
		pcm     []byte
		haveFmt bool
	)
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(b) {
			return f, nil, fmt.Errorf("truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return f, nil, fmt.Errorf("fmt chunk too short")
			}
			if audioFormat := binary.LittleEndian.Uint16(b[body : body+2]); audioFormat != 1 {
				return f, nil, fmt.Errorf("unsupported audio format %d, want PCM", audioFormat)
			}
			f.Channels = binary.LittleEndian.Uint16(b[body+2 : body+4])
			f.SampleRate = binary.LittleEndian.Uint32(b[body+4 : body+8])
			f.BitsPerSample = binary.LittleEndian.Uint16(b[body+14 : body+16])
			haveFmt = true
		case "data":
			pcm = b[body : body+size]
		}

		pos = body + size
		if size%2 == 1 {
			pos++ // chunks are word aligned
		}
	}

	if !haveFmt {
		return f, nil, fmt.Errorf("missing fmt chunk")
	}
	if pcm == nil {
		return f, nil, fmt.Errorf("missing data chunk")
	}
	return f, pcm, nil
}

// EncodeWAV writes a single canonical RIFF/WAVE container around pcm.
func EncodeWAV(f WAVFormat, pcm []byte) []byte {
	blockAlign := uint16(f.Channels * f.BitsPerSample / 8)
	byteRate := f.SampleRate * uint32(blockAlign)

	out := make([]byte, wavHeaderLen+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], f.Channels)
	binary.LittleEndian.PutUint32(out[24:28], f.SampleRate)
	binary.LittleEndian.PutUint32(out[28:32], byteRate)
	binary.LittleEndian.PutUint16(out[32:34], blockAlign)
	binary.LittleEndian.PutUint16(out[34:36], f.BitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderLen:], pcm)
	return out
}

// PCMDuration computes the playback time of pcm bytes in format f.
func PCMDuration(f WAVFormat, pcmLen int) time.Duration {
	bytesPerSecond := int(f.SampleRate) * int(f.Channels) * int(f.BitsPerSample) / 8
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(pcmLen) * time.Second / time.Duration(bytesPerSecond)
}
