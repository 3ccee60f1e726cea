package config

import "time"

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"

type Config struct {
	RedisConfig          RedisStorageConfig
	HttpPort             int
	StorageType          StorageType
	MessageLogFile       string
	MessageLogCapacity   int
	SendTimeout          time.Duration
	HttpNodeTimeout      time.Duration
	CompletionTimeout    time.Duration
	ResumePollInterval   int
	SchedulePollInterval int
	OpenAIKey            string
	AnthropicKey         string
	GeminiKey            string
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
}
