package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Session   SessionConfig   `mapstructure:"session"`
	OSS       OSSConfig       `mapstructure:"oss"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	Email     EmailConfig     `mapstructure:"email"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Referral  ReferralConfig  `mapstructure:"referral"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Upload    UploadConfig    `mapstructure:"upload"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Enabled 未配置 host 时视为单机模式
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

type SessionConfig struct {
	CookieName  string `mapstructure:"cookie_name"`
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
	Secure      bool   `mapstructure:"secure"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

func (c OSSConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKeyID != ""
}

type OAuthConfig struct {
	Github GithubOAuthConfig `mapstructure:"github"`
}

type GithubOAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type QueueConfig struct {
	RewardQueue string `mapstructure:"reward_queue"`
	MaxWorkers  int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type QuotaConfig struct {
	DailyRollLimit   int      `mapstructure:"daily_roll_limit"`
	MaxAdsPerDay     int      `mapstructure:"max_ads_per_day"`
	AdRewardsEnabled bool     `mapstructure:"ad_rewards_enabled"` // 在可信的广告回执方案落地前保持关闭
	TestUserEmails   []string `mapstructure:"test_user_emails"`
}

type ReferralConfig struct {
	RewardMonths           int `mapstructure:"reward_months"`
	ProcessIntervalMinutes int `mapstructure:"process_interval_minutes"`
}

type RateLimitConfig struct {
	Backend    string      `mapstructure:"backend"` // memory, redis
	Connection LimitConfig `mapstructure:"connection"`
	ChatEvent  LimitConfig `mapstructure:"chat_event"`
	API        LimitConfig `mapstructure:"api"`
}

type LimitConfig struct {
	Max           int `mapstructure:"max"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

func (c LimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type ChatConfig struct {
	DefaultRoom         string `mapstructure:"default_room"`
	MaxContentLength    int    `mapstructure:"max_content_length"`
	HistoryDefaultLimit int    `mapstructure:"history_default_limit"`
	HistoryMaxLimit     int    `mapstructure:"history_max_limit"`
}

type UploadConfig struct {
	AudioDir         string   `mapstructure:"audio_dir"`          // 音频文件存放目录
	PublicPath       string   `mapstructure:"public_path"`        // 对外访问前缀
	MaxSize          int64    `mapstructure:"max_size"`           // 最大文件大小（字节）
	MaxDurationSec   int      `mapstructure:"max_duration_sec"`   // 最长时长（秒）
	AllowedMimeTypes []string `mapstructure:"allowed_mime_types"` // 允许的声明类型
	OrphanGraceHours int      `mapstructure:"orphan_grace_hours"` // 未引用文件的保留时间
}

// Default 返回带有全部默认值的配置，配置文件只需覆盖差异项
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "debug"},
		Database: DatabaseConfig{
			Driver:       "mysql",
			MaxIdleConns: 10,
			MaxOpenConns: 50,
		},
		Redis: RedisConfig{Port: 6379, PoolSize: 20},
		Session: SessionConfig{
			CookieName:  "gd_session",
			ExpireHours: 24 * 7,
		},
		Queue: QueueConfig{RewardQueue: "referral_rewards", MaxWorkers: 2},
		CORS: CORSConfig{
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		},
		Quota: QuotaConfig{
			DailyRollLimit: 5,
			MaxAdsPerDay:   5,
		},
		Referral: ReferralConfig{RewardMonths: 1, ProcessIntervalMinutes: 60},
		RateLimit: RateLimitConfig{
			Backend:    "memory",
			Connection: LimitConfig{Max: 10, WindowSeconds: 60},
			ChatEvent:  LimitConfig{Max: 30, WindowSeconds: 60},
			API:        LimitConfig{Max: 100, WindowSeconds: 60},
		},
		Chat: ChatConfig{
			DefaultRoom:         "public",
			MaxContentLength:    1000,
			HistoryDefaultLimit: 50,
			HistoryMaxLimit:     100,
		},
		Upload: UploadConfig{
			AudioDir:       "uploads/audio",
			PublicPath:     "/uploads/audio",
			MaxSize:        5 * 1024 * 1024,
			MaxDurationSec: 30,
			AllowedMimeTypes: []string{
				"audio/mpeg", "audio/mp3",
				"audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave",
				"audio/ogg",
				"audio/mp4", "audio/x-m4a", "audio/m4a",
				"audio/flac", "audio/x-flac",
			},
			OrphanGraceHours: 24,
		},
	}
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
