package config

import "time"

// Chat definition chat_service YAML structure
type Chat struct {
	Port       string           `mapstructure:"port"`
	Pprof      bool             `mapstructure:"pprof"`
	History    HistoryConfig    `mapstructure:"history"`
	Typing     TypingConfig     `mapstructure:"typing"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

// HistoryConfig definition per room history and paging limits
type HistoryConfig struct {
	MaxMessages     int `mapstructure:"max_messages"`
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
	MaxBodyLength   int `mapstructure:"max_body_length"`
	MaxFileBytes    int `mapstructure:"max_file_bytes"`
}

// TypingConfig definition typing indicator expiry
type TypingConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ConnectionConfig definition websocket connection setting
type ConnectionConfig struct {
	SendBuffer      int           `mapstructure:"send_buffer"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	RateBurst       int           `mapstructure:"rate_burst"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
}

// RedisConfig definition redis event mirror setting
type RedisConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Addr          string   `mapstructure:"addr"`
	MasterName    string   `mapstructure:"master_name"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs"`
	RedisDB       int      `mapstructure:"redis_db"`
	ChannelPrefix string   `mapstructure:"channel_prefix"`
}

// DefaultChat returns the settings used when the YAML file omits a key
func DefaultChat() Chat {
	return Chat{
		Port: "5000",
		History: HistoryConfig{
			MaxMessages:     100,
			DefaultPageSize: 20,
			MaxPageSize:     100,
			MaxBodyLength:   5000,
			MaxFileBytes:    5 << 20,
		},
		Typing: TypingConfig{
			TTL:           8 * time.Second,
			SweepInterval: time.Second,
		},
		Connection: ConnectionConfig{
			SendBuffer:      256,
			MaxMessageBytes: 8 << 20,
			RatePerSecond:   20,
			RateBurst:       40,
			PingInterval:    54 * time.Second,
			PongWait:        60 * time.Second,
			WriteWait:       10 * time.Second,
		},
		Redis: RedisConfig{
			ChannelPrefix: "chat:room:",
		},
	}
}
