package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/pkg/audio"
	"github.com/qs3c/guitar_dice_server/internal/pkg/storage"
	"github.com/qs3c/guitar_dice_server/internal/repository"
)

// 语音校验失败原因，原样返回给客户端
const (
	AudioInvalidFile      = "INVALID_FILE"
	AudioFileTooLarge     = "FILE_TOO_LARGE"
	AudioInvalidMIMEType  = "INVALID_MIME_TYPE"
	AudioInvalidMagic     = "INVALID_MAGIC_BYTES"
	AudioInconsistent     = "INCONSISTENT_FILE_FORMAT"
	AudioInvalidAudio     = "INVALID_AUDIO"
	AudioDurationExceeded = "DURATION_EXCEEDED"
	AudioPathTraversal    = "PATH_TRAVERSAL"
)

// AudioError 可预期的校验失败
type AudioError struct {
	Code    string
	Message string
}

func (e *AudioError) Error() string {
	return e.Code + ": " + e.Message
}

func newAudioError(code, message string) *AudioError {
	return &AudioError{Code: code, Message: message}
}

// AudioMirror 对象存储镜像，*oss.Client 实现
type AudioMirror interface {
	UploadAudio(name string, data []byte, contentType string) (string, error)
	Owns(url string) bool
	DeleteByURL(url string) error
}

// AudioUpload 客户端上传的语音
type AudioUpload struct {
	Data         []byte
	Filename     string // 仅用于扩展名一致性校验，不参与存储命名
	DeclaredMIME string
}

// StoredAudio 校验并保存后的语音
type StoredAudio struct {
	Key         string
	URL         string
	MimeType    string
	DurationSec int
}

// OrphanReport 清理结果
type OrphanReport struct {
	Scanned int
	Removed []string
}

type AudioService struct {
	store    *storage.FileStore
	mirror   AudioMirror
	chatRepo *repository.ChatRepository
	cfg      *config.UploadConfig
	allowed  map[string]bool
}

func NewAudioService(store *storage.FileStore, mirror AudioMirror, chatRepo *repository.ChatRepository, cfg *config.UploadConfig) *AudioService {
	allowed := make(map[string]bool, len(cfg.AllowedMimeTypes))
	for _, m := range cfg.AllowedMimeTypes {
		allowed[normalizeMIME(m)] = true
	}
	return &AudioService{
		store:    store,
		mirror:   mirror,
		chatRepo: chatRepo,
		cfg:      cfg,
		allowed:  allowed,
	}
}

// Validate 依次校验大小、声明类型、文件头、格式一致性与时长
func (s *AudioService) Validate(upload *AudioUpload) (audio.Format, time.Duration, error) {
	if upload == nil || len(upload.Data) == 0 {
		return audio.FormatUnknown, 0, newAudioError(AudioInvalidFile, "未上传音频文件")
	}
	if int64(len(upload.Data)) > s.cfg.MaxSize {
		return audio.FormatUnknown, 0, newAudioError(AudioFileTooLarge,
			fmt.Sprintf("音频文件不能超过 %d MB", s.cfg.MaxSize/(1024*1024)))
	}

	declared := normalizeMIME(upload.DeclaredMIME)
	if !s.allowed[declared] {
		return audio.FormatUnknown, 0, newAudioError(AudioInvalidMIMEType, "不支持的音频类型")
	}

	// 声明类型可以伪造，以文件头为准
	format, detected := audio.Detect(upload.Data)
	if format == audio.FormatUnknown {
		log.Debug().Str("declared", declared).Str("detected", detected).Msg("audio magic bytes rejected")
		return audio.FormatUnknown, 0, newAudioError(AudioInvalidMagic, "文件内容不是有效的音频格式")
	}
	if audio.FromMIME(declared) != format {
		return audio.FormatUnknown, 0, newAudioError(AudioInconsistent, "文件内容与声明的类型不一致")
	}
	if ext := filepath.Ext(upload.Filename); ext != "" && audio.FromExtension(ext) != format {
		return audio.FormatUnknown, 0, newAudioError(AudioInconsistent, "文件内容与扩展名不一致")
	}

	duration, err := audio.Duration(format, upload.Data)
	if err != nil {
		return audio.FormatUnknown, 0, newAudioError(AudioInvalidAudio, "无法解析音频时长")
	}
	maxDuration := time.Duration(s.cfg.MaxDurationSec) * time.Second
	if duration > maxDuration {
		return audio.FormatUnknown, 0, newAudioError(AudioDurationExceeded,
			fmt.Sprintf("语音时长不能超过 %d 秒", s.cfg.MaxDurationSec))
	}

	return format, duration, nil
}

// Save 校验后以随机文件名写入上传目录，配置了 OSS 时同步上传并使用 OSS 地址
func (s *AudioService) Save(ctx context.Context, upload *AudioUpload) (*StoredAudio, error) {
	format, duration, err := s.Validate(upload)
	if err != nil {
		return nil, err
	}

	key, err := s.store.Write(ctx, uuid.NewString()+format.Extension(), upload.Data)
	if err != nil {
		if errors.Is(err, storage.ErrPathTraversal) || errors.Is(err, storage.ErrInvalidKey) {
			return nil, newAudioError(AudioPathTraversal, "非法的文件路径")
		}
		return nil, fmt.Errorf("write audio: %w", err)
	}

	stored := &StoredAudio{
		Key:         key,
		URL:         path.Join(s.publicPath(), key),
		MimeType:    format.ContentType(),
		DurationSec: durationSeconds(duration),
	}

	if s.mirror != nil {
		ossURL, err := s.mirror.UploadAudio(key, upload.Data, stored.MimeType)
		if err != nil {
			// 本地文件仍可访问
			log.Error().Err(err).Str("key", key).Msg("mirror audio to oss failed")
		} else {
			stored.URL = ossURL
		}
	}

	return stored, nil
}

// Remove 删除消息引用的语音文件
func (s *AudioService) Remove(url string) error {
	if s.mirror != nil && s.mirror.Owns(url) {
		if err := s.mirror.DeleteByURL(url); err != nil {
			return err
		}
		// 本地副本同名
		return s.store.Delete(path.Base(url))
	}

	prefix := s.publicPath() + "/"
	if !strings.HasPrefix(url, prefix) {
		return nil
	}
	return s.store.Delete(strings.TrimPrefix(url, prefix))
}

// CleanupOrphans 删除超过保留期且没有被任何消息引用的文件
func (s *AudioService) CleanupOrphans(ctx context.Context, dryRun bool) (*OrphanReport, error) {
	urls, err := s.chatRepo.ListAudioURLs()
	if err != nil {
		return nil, fmt.Errorf("list audio urls: %w", err)
	}
	referenced := make(map[string]bool, len(urls))
	for _, u := range urls {
		referenced[path.Base(u)] = true
	}

	files, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("list audio files: %w", err)
	}

	grace := time.Duration(s.cfg.OrphanGraceHours) * time.Hour
	cutoff := time.Now().Add(-grace)

	report := &OrphanReport{Scanned: len(files), Removed: []string{}}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if referenced[path.Base(f.Key)] || f.ModTime.After(cutoff) {
			continue
		}
		if !dryRun {
			if err := s.store.Delete(f.Key); err != nil {
				log.Warn().Err(err).Str("key", f.Key).Msg("remove orphan audio failed")
				continue
			}
		}
		report.Removed = append(report.Removed, f.Key)
	}

	return report, nil
}

// MaxSize 上传大小上限，handler 用于限制读取
func (s *AudioService) MaxSize() int64 {
	return s.cfg.MaxSize
}

func (s *AudioService) publicPath() string {
	p := strings.TrimRight(s.cfg.PublicPath, "/")
	if p == "" {
		return "/uploads/audio"
	}
	return p
}

func normalizeMIME(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	return m
}

func durationSeconds(d time.Duration) int {
	sec := int(math.Round(d.Seconds()))
	if sec < 1 {
		return 1
	}
	return sec
}
