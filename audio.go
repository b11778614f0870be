package clipmatrix

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

type (
	// AudioBuffer is a buffer of stereo audio samples of the form
	// [[l1,r1],[l2,r2],...]. It is in convenient form for the clip engine to
	// handle, but can be converted to raw bytes or wav with the methods
	// below.
	AudioBuffer [][2]float32

	// AudioOutput is something where you can play back AudioBuffers; closing
	// the CloserWaiter returned by Play stops the playback early.
	AudioOutput interface {
		Play(r io.Reader) CloserWaiter
		Close() error
	}

	// CloserWaiter allows waiting until playback has finished or stopping it
	// early.
	CloserWaiter interface {
		io.Closer
		Wait()
	}
)

// Fill zeroes the whole buffer.
func (buffer AudioBuffer) Fill() {
	for i := range buffer {
		buffer[i] = [2]float32{}
	}
}

// Source returns an io.Reader that returns the samples of the buffer as
// 16-bit little endian signed PCM, which is the format most audio outputs
// expect.
func (buffer AudioBuffer) Source() io.Reader {
	return &audioBufferReader{buffer: buffer}
}

type audioBufferReader struct {
	buffer AudioBuffer
	pos    int // position in bytes; each stereo frame is 4 bytes
}

func (r *audioBufferReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.buffer)*4 {
		return 0, io.EOF
	}
	n := 0
	for n+3 < len(p) && r.pos < len(r.buffer)*4 {
		frame := r.buffer[r.pos/4]
		l := int16(clamp(int(frame[0]*math.MaxInt16), math.MinInt16, math.MaxInt16))
		rr := int16(clamp(int(frame[1]*math.MaxInt16), math.MinInt16, math.MaxInt16))
		binary.LittleEndian.PutUint16(p[n:], uint16(l))
		binary.LittleEndian.PutUint16(p[n+2:], uint16(rr))
		n += 4
		r.pos += 4
	}
	return n, nil
}

// Wav converts an AudioBuffer into a valid WAV-file, returned as a []byte
// array. pcm16 governs whether the samples in the WAV-file are saved as int16
// or float32 type.
func (buffer AudioBuffer) Wav(sampleRate int, pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	wavHeader(len(buffer)*2, sampleRate, pcm16, buf)
	err := buffer.rawToBuffer(pcm16, buf)
	if err != nil {
		return nil, fmt.Errorf("Wav failed: %v", err)
	}
	return buf.Bytes(), nil
}

// Raw converts an AudioBuffer into a raw audio file, returned as a []byte
// array.
func (buffer AudioBuffer) Raw(pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := buffer.rawToBuffer(pcm16, buf)
	if err != nil {
		return nil, fmt.Errorf("Raw failed: %v", err)
	}
	return buf.Bytes(), nil
}

func (buffer AudioBuffer) rawToBuffer(pcm16 bool, buf *bytes.Buffer) error {
	var err error
	if pcm16 {
		int16data := make([]int16, len(buffer)*2)
		for i, v := range buffer {
			int16data[i*2] = int16(clamp(int(v[0]*math.MaxInt16), math.MinInt16, math.MaxInt16))
			int16data[i*2+1] = int16(clamp(int(v[1]*math.MaxInt16), math.MinInt16, math.MaxInt16))
		}
		err = binary.Write(buf, binary.LittleEndian, int16data)
	} else {
		err = binary.Write(buf, binary.LittleEndian, buffer)
	}
	if err != nil {
		return fmt.Errorf("could not binary write data to binary buffer: %v", err)
	}
	return nil
}

// wavHeader writes a wave header for either float32 or int16 .wav file into
// the bytes.buffer. It needs to know the length of the buffer in samples
// (stereo L + R counted separately). pcm16 = true writes a header for int16
// audio, pcm16 = false for float32 audio.
func wavHeader(bufferLength int, sampleRate int, pcm16 bool, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	numChannels := 2
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*bufferLength
		fmtChunkSize = 16
		waveFormat = 1 // PCM
		factChunk = false
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*bufferLength
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	buf.Write([]byte("RIFF"))
	binary.Write(buf, binary.LittleEndian, uint32(chunkSize))
	buf.Write([]byte("WAVE"))
	buf.Write([]byte("fmt "))
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(waveFormat))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, binary.LittleEndian, uint16(numChannels*bytesPerSample))            // blockAlign
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))                      // bits per sample
	if fmtChunkSize > 16 {
		binary.Write(buf, binary.LittleEndian, uint16(0)) // size of extension
	}
	if factChunk {
		buf.Write([]byte("fact"))
		binary.Write(buf, binary.LittleEndian, uint32(4))            // fact chunk size
		binary.Write(buf, binary.LittleEndian, uint32(bufferLength)) // sample length
	}
	buf.Write([]byte("data"))
	binary.Write(buf, binary.LittleEndian, uint32(bytesPerSample*bufferLength))
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
