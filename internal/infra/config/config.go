package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию шлюза ленты.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"Asia/Jakarta"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	API struct {
		BaseURL string        `envconfig:"API_BASE_URL" required:"true"`
		Token   string        `envconfig:"API_TOKEN"`
		Timeout time.Duration `envconfig:"API_TIMEOUT" default:"15s"`
	} `envconfig:""`

	Gateway struct {
		Token string `envconfig:"GATEWAY_TOKEN"`
	} `envconfig:""`

	Feed struct {
		WSEndpoint   string        `envconfig:"WS_ENDPOINT"`
		Contexts     []string      `envconfig:"FEED_CONTEXTS" default:"marketplace"`
		PollInterval time.Duration `envconfig:"FEED_POLL_INTERVAL" default:"0s"`
		FirstWeekday string        `envconfig:"CALENDAR_FIRST_WEEKDAY" default:"sunday"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Reference struct {
		TTL time.Duration `envconfig:"REFERENCE_TTL" default:"10m"`
	} `envconfig:""`

	Queues struct {
		RabbitURL      string `envconfig:"RABBITMQ_URL"`
		RabbitExchange string `envconfig:"RABBITMQ_EXCHANGE" default:"masjid.feed"`
		RabbitQueue    string `envconfig:"RABBITMQ_QUEUE"`
		RedisFrameKey  string `envconfig:"REDIS_FRAME_KEY"`
	} `envconfig:""`
}

// Load загружает .env (если есть) и конфиг из окружения.
func Load() AppConfig {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := LoadDotEnv(path); err != nil {
		log.Fatalf("не удалось прочитать %s: %v", path, err)
	}
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения и возвращает ошибку вместо завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadDotEnv подгружает переменные из файла, не перетирая уже заданные. Отсутствующий файл не ошибка.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
