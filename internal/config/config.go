// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"ephemeral_chat/pkg/constants"
)

// Duration 包装 time.Duration，使 TOML 中可以写 "1s"、"500ms" 这样的字符串
type Duration struct {
	time.Duration
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText 实现 encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// MainConfig 主配置，包含应用基本信息
type MainConfig struct {
	AppName string `toml:"appName"` // 应用名称，用于日志标识等
	Host    string `toml:"host"`    // 本地接口监听地址
	Port    int    `toml:"port"`    // 本地接口监听端口
	Mode    string `toml:"mode"`    // 运行模式：dev 或 release

	SSLRedirect bool `toml:"sslRedirect"` // 由本进程终止 TLS 时开启
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`    // 日志文件存储目录
	FileName   string `toml:"fileName"`   // 日志文件名
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // 日志级别：debug, info, warn, error
}

// StoreConfig 文档存储后端配置
type StoreConfig struct {
	Backend    string `toml:"backend"`    // memory | redis | mysql | sqlite
	KeyPrefix  string `toml:"keyPrefix"`  // redis 键前缀
	SqlitePath string `toml:"sqlitePath"` // sqlite 文件路径
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
	Db       int    `toml:"db"`
}

// MysqlConfig MySQL 数据库连接配置
type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

// KafkaConfig 变更事件镜像配置
type KafkaConfig struct {
	FeedMode    string        `toml:"feedMode"`    // none 或 kafka
	HostPort    string        `toml:"hostPort"`    // Kafka 地址，如 "localhost:9092"
	ChangeTopic string        `toml:"changeTopic"` // 变更事件主题
	Timeout     time.Duration `toml:"timeout"`     // 写超时（秒）
}

// LifecycleConfig 好友关系与消息生命周期的时间参数
type LifecycleConfig struct {
	FriendshipDurationDays int      `toml:"friendshipDurationDays"`
	ChatInactivityHours    int      `toml:"chatInactivityHours"`
	GroupInactivityHours   int      `toml:"groupInactivityHours"`
	ViewOnceGrace          Duration `toml:"viewOnceGrace"`
	TimedDeleteDefault     Duration `toml:"timedDeleteDefault"`
	TypingDebounce         Duration `toml:"typingDebounce"`
	LapseSweepInterval     Duration `toml:"lapseSweepInterval"` // 0 表示不启用过期清理
	AutoAcceptReciprocal   bool     `toml:"autoAcceptReciprocal"`
}

// FriendshipDuration 好友有效期
func (c LifecycleConfig) FriendshipDuration() time.Duration {
	return time.Duration(c.FriendshipDurationDays) * 24 * time.Hour
}

// ChatInactivity 单聊清空阈值
func (c LifecycleConfig) ChatInactivity() time.Duration {
	return time.Duration(c.ChatInactivityHours) * time.Hour
}

// GroupInactivity 多人会话清空阈值
func (c LifecycleConfig) GroupInactivity() time.Duration {
	return time.Duration(c.GroupInactivityHours) * time.Hour
}

// SessionConfig 本地会话状态配置
type SessionConfig struct {
	LocalStatePath string `toml:"localStatePath"` // 本地身份指针与昵称历史文件
	DeepLink       string `toml:"deepLink"`       // 启动时消费的分享链接（可选）
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"`
}

// WorkerConfig 异步任务池配置
type WorkerConfig struct {
	Workers int `toml:"workers"`
	Buffer  int `toml:"buffer"`
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig      `toml:"mainConfig"`
	LogConfig       `toml:"logConfig"`
	StoreConfig     `toml:"storeConfig"`
	RedisConfig     `toml:"redisConfig"`
	MysqlConfig     `toml:"mysqlConfig"`
	KafkaConfig     `toml:"kafkaConfig"`
	LifecycleConfig `toml:"lifecycleConfig"`
	SessionConfig   `toml:"sessionConfig"`
	SnowflakeConfig `toml:"snowflakeConfig"`
	WorkerConfig    `toml:"workerConfig"`
}

// config 全局配置单例，延迟加载
var config *Config

// Default 返回全部字段都填好默认值的配置
func Default() *Config {
	c := new(Config)
	c.applyDefaults()
	return c
}

// applyDefaults 为未配置的字段填充默认值
func (c *Config) applyDefaults() {
	if c.AppName == "" {
		c.AppName = "ephemeral_chat"
	}
	if c.MainConfig.Host == "" {
		c.MainConfig.Host = "127.0.0.1"
	}
	if c.MainConfig.Port == 0 {
		c.MainConfig.Port = 8000
	}
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.LogPath == "" {
		c.LogPath = "./logs"
	}
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "ephemeral:"
	}
	if c.SqlitePath == "" {
		c.SqlitePath = "ephemeral_chat.db"
	}
	if c.RedisConfig.Host == "" {
		c.RedisConfig.Host = "127.0.0.1"
	}
	if c.RedisConfig.Port == 0 {
		c.RedisConfig.Port = 6379
	}
	if c.FeedMode == "" {
		c.FeedMode = "none"
	}
	if c.ChangeTopic == "" {
		c.ChangeTopic = "ephemeral_chat_changes"
	}
	if c.KafkaConfig.Timeout == 0 {
		c.KafkaConfig.Timeout = 1
	}

	lc := &c.LifecycleConfig
	if lc.FriendshipDurationDays == 0 {
		lc.FriendshipDurationDays = constants.FRIENDSHIP_DURATION_DAYS
	}
	if lc.ChatInactivityHours == 0 {
		lc.ChatInactivityHours = constants.CHAT_INACTIVITY_HOURS
	}
	if lc.GroupInactivityHours == 0 {
		lc.GroupInactivityHours = constants.GROUP_INACTIVITY_HOURS
	}
	if lc.ViewOnceGrace.Duration == 0 {
		lc.ViewOnceGrace.Duration = constants.VIEW_ONCE_GRACE
	}
	if lc.TimedDeleteDefault.Duration == 0 {
		lc.TimedDeleteDefault.Duration = constants.TIMED_DELETE_DEFAULT
	}
	if lc.TypingDebounce.Duration == 0 {
		lc.TypingDebounce.Duration = constants.TYPING_DEBOUNCE
	}

	if c.LocalStatePath == "" {
		c.LocalStatePath = "./data/local_state.toml"
	}
	if c.MachineID == 0 {
		c.MachineID = 1
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Buffer == 0 {
		c.Buffer = 1024
	}
}

// Load 从指定路径加载配置文件并填充默认值
func Load(path string) (*Config, error) {
	c := new(Config)
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	c.applyDefaults()
	return c, nil
}

// LoadConfig 从多个候选路径加载配置文件
// 按顺序尝试加载，找到第一个存在的配置文件即停止
func LoadConfig() error {
	paths := []string{
		"configs/config_local.toml",       // 本地开发配置（优先）
		"configs/config.toml",             // 默认配置
		"../../configs/config_local.toml", // 从子目录运行时的路径
		"../../configs/config.toml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		c, err := Load(path)
		if err != nil {
			return err
		}
		config = c
		return nil
	}

	return fmt.Errorf("could not find configuration file in any of the search paths")
}

// GetConfig 获取全局配置实例（单例模式）
// 首次调用时会自动加载配置文件，找不到时使用默认值
func GetConfig() *Config {
	if config == nil {
		if err := LoadConfig(); err != nil {
			config = Default()
		}
	}
	return config
}
