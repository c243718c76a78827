package database

import "time"

// Connection definition connect retry setting
type Connection struct {
	RetryCount    int
	RetryInterval time.Duration
}

// RedisConnection definition redis endpoint, sentinel when SentinelAddrs is set
type RedisConnection struct {
	Addr          string
	MasterName    string
	SentinelAddrs []string
	DB            int

	Connection
}
