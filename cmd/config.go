package main

import "time"

type Config struct {
	Host                      string        `env:"HOST,default=localhost"`
	Port                      int           `env:"PORT,default=8080"`
	LogLevel                  string        `env:"LOG_LEVEL,default=info"`
	JWTSecret                 string        `env:"JWT_SECRET,required=true"`
	TokenTTL                  time.Duration `env:"TOKEN_TTL,default=24h"`
	BadgerFilepath            string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath             string        `env:"BLUGE_FILEPATH,required=true"`
	ConnectionBufferSize      int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	LimitMessages             *int          `env:"LIMIT_MESSAGES"`
	WriteTimeout              time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PingInterval              time.Duration `env:"PING_INTERVAL,default=30s"`
	StatsInterval             time.Duration `env:"STATS_INTERVAL,default=30s"`
	RestartInterval           time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ModerationCharReplacement string        `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
}
