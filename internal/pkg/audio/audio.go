// Package audio 识别音频容器格式并解析时长。
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abema/go-mp4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/wav"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
	"github.com/tcolgate/mp3"
)

// Format 支持的音频容器
type Format string

const (
	FormatUnknown Format = ""
	FormatMP3     Format = "mp3"
	FormatWAV     Format = "wav"
	FormatOGG     Format = "ogg"
	FormatM4A     Format = "m4a"
	FormatFLAC    Format = "flac"
)

var (
	ErrUnknownFormat = errors.New("audio: unrecognized container")
	ErrUnreadable    = errors.New("audio: cannot read duration")
)

// 检测到的 MIME 与容器的对应关系，按顺序匹配
var detectTable = []struct {
	mime   string
	format Format
}{
	{"audio/mpeg", FormatMP3},
	{"audio/wav", FormatWAV},
	{"audio/flac", FormatFLAC},
	{"audio/ogg", FormatOGG},
	{"application/ogg", FormatOGG},
	{"audio/x-m4a", FormatM4A},
	{"audio/mp4", FormatM4A},
	{"video/mp4", FormatM4A},
}

// 客户端声明的 MIME 与容器的对应关系
var declaredTable = map[string]Format{
	"audio/mpeg":     FormatMP3,
	"audio/mp3":      FormatMP3,
	"audio/wav":      FormatWAV,
	"audio/x-wav":    FormatWAV,
	"audio/wave":     FormatWAV,
	"audio/vnd.wave": FormatWAV,
	"audio/ogg":      FormatOGG,
	"audio/mp4":      FormatM4A,
	"audio/x-m4a":    FormatM4A,
	"audio/m4a":      FormatM4A,
	"audio/flac":     FormatFLAC,
	"audio/x-flac":   FormatFLAC,
}

var extensionTable = map[string]Format{
	".mp3":  FormatMP3,
	".wav":  FormatWAV,
	".wave": FormatWAV,
	".ogg":  FormatOGG,
	".oga":  FormatOGG,
	".m4a":  FormatM4A,
	".mp4":  FormatM4A,
	".flac": FormatFLAC,
}

// Detect 根据文件头的 magic bytes 判断容器，与文件名和声明类型无关
func Detect(data []byte) (Format, string) {
	mtype := mimetype.Detect(data)
	for m := mtype; m != nil; m = m.Parent() {
		for _, entry := range detectTable {
			if m.Is(entry.mime) {
				return entry.format, mtype.String()
			}
		}
	}
	return FormatUnknown, mtype.String()
}

// FromMIME 声明类型对应的容器，忽略 codecs 等参数
func FromMIME(declared string) Format {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	return declaredTable[declared]
}

// FromExtension 扩展名对应的容器，ext 需包含点号
func FromExtension(ext string) Format {
	return extensionTable[strings.ToLower(ext)]
}

// Extension 存储时使用的扩展名
func (f Format) Extension() string {
	if f == FormatUnknown {
		return ""
	}
	return "." + string(f)
}

// ContentType 存储和回放时使用的标准 MIME
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	case FormatOGG:
		return "audio/ogg"
	case FormatM4A:
		return "audio/mp4"
	case FormatFLAC:
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// Duration 解析容器内记录的音频时长
func Duration(format Format, data []byte) (time.Duration, error) {
	var (
		d   time.Duration
		err error
	)

	switch format {
	case FormatWAV:
		d, err = wavDuration(data)
	case FormatMP3:
		d, err = mp3Duration(data)
	case FormatFLAC:
		d, err = flacDuration(data)
	case FormatOGG:
		d, err = oggDuration(data)
	case FormatM4A:
		d, err = m4aDuration(data)
	default:
		return 0, ErrUnknownFormat
	}

	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if d <= 0 {
		return 0, ErrUnreadable
	}
	return d, nil
}

func wavDuration(data []byte) (time.Duration, error) {
	if !wav.NewDecoder(bytes.NewReader(data)).IsValidFile() {
		return 0, errors.New("invalid wav header")
	}
	// IsValidFile 会推进读取位置，时长用新的 decoder 重新解析
	return wav.NewDecoder(bytes.NewReader(data)).Duration()
}

func mp3Duration(data []byte) (time.Duration, error) {
	dec := mp3.NewDecoder(bytes.NewReader(data))

	var (
		frame   mp3.Frame
		skipped int
		total   time.Duration
		frames  int
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration()
		frames++
	}

	if frames == 0 {
		return 0, errors.New("no mp3 frames")
	}
	return total, nil
}

func flacDuration(data []byte) (time.Duration, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	info := stream.Info
	if info == nil || info.SampleRate == 0 {
		return 0, errors.New("missing flac stream info")
	}
	return samplesToDuration(int64(info.NSamples), int64(info.SampleRate)), nil
}

func oggDuration(data []byte) (time.Duration, error) {
	samples, format, err := oggvorbis.GetLength(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	if format == nil || format.SampleRate == 0 {
		return 0, errors.New("missing vorbis format")
	}
	return samplesToDuration(samples, int64(format.SampleRate)), nil
}

func m4aDuration(data []byte) (time.Duration, error) {
	info, err := mp4.Probe(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	if info.Timescale == 0 {
		return 0, errors.New("missing mp4 timescale")
	}
	return samplesToDuration(int64(info.Duration), int64(info.Timescale)), nil
}

func samplesToDuration(samples, rate int64) time.Duration {
	return time.Duration(float64(samples) / float64(rate) * float64(time.Second))
}
