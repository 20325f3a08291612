package testutil

import (
	"bytes"
	"encoding/binary"
	"time"
)

// WAVBytes 生成指定秒数的静音 PCM WAV（8kHz 单声道 16bit）
func WAVBytes(seconds int) []byte {
	return WAVBytesOf(time.Duration(seconds) * time.Second)
}

// WAVBytesOf 按采样点精度生成指定时长的静音 WAV
func WAVBytesOf(d time.Duration) []byte {
	const (
		sampleRate    = 8000
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	samples := int(d * sampleRate / time.Second)
	dataSize := samples * channels * bitsPerSample / 8

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))

	return buf.Bytes()
}
