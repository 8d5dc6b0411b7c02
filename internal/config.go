package internal

import "time"

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
	Host           string `env:"HOST,default=localhost"`
	Port           int    `env:"PORT,default=8080"`

	AuthTokenSecret   string        `env:"AUTH_TOKEN_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	GeminiAPIKey  string        `env:"GEMINI_API_KEY,required=true"`
	GeminiModel   string        `env:"GEMINI_MODEL"`
	GeminiTimeout time.Duration `env:"GEMINI_TIMEOUT"`

	SessionUpdateBuffer int           `env:"SESSION_UPDATE_BUFFER"`
	MonitorInterval     time.Duration `env:"MONITOR_INTERVAL,required=true"`
	GCInterval          time.Duration `env:"GC_INTERVAL,required=true"`
}
