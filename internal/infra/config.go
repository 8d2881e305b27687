package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации обоих сервисов.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	GRPCPort int    `mapstructure:"grpc_port"` // health у propagator
	// WriteTimeout не задается: WebSocket-сессия живет дольше любого дедлайна записи
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig описывает подключение к PostgreSQL. При пустом URL работают in-memory сторы.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Streams, реестр сессий, Pub/Sub).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BrokerConfig выбирает бэкенд шины событий.
type BrokerConfig struct {
	Backend     string        `mapstructure:"backend"` // redis, kafka, memory
	Brokers     []string      `mapstructure:"brokers"` // только kafka
	Group       string        `mapstructure:"group"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Block       time.Duration `mapstructure:"block"`

	// Consumer — имя консьюмера в группе Redis Streams, переживает рестарт. Пусто — hostname.
	Consumer string `mapstructure:"consumer"`
	// ClaimIdle: сколько сообщение висит неподтвержденным у другого консьюмера,
	// прежде чем его заберут
	ClaimIdle time.Duration `mapstructure:"claim_idle"`
}

// AuthConfig содержит пути к RSA ключам и настройки служебного токена.
type AuthConfig struct {
	PublicKeyPath    string        `mapstructure:"public_key_path"`
	PrivateKeyPath   string        `mapstructure:"private_key_path"` // нужен только исполнителю апрувов
	InternalTokenTTL time.Duration `mapstructure:"internal_token_ttl"`
	InternalAudience string        `mapstructure:"internal_audience"`
	Issuer           string        `mapstructure:"issuer"`
	PublicKey        []byte
	PrivateKey       []byte
}

// ExecutorConfig — куда и как исполнитель повторяет одобренные действия.
type ExecutorConfig struct {
	Routes  map[string]string `mapstructure:"routes"` // entityType -> base URL
	Timeout time.Duration     `mapstructure:"timeout"`

	CBMaxRequests int           `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBFailures    uint32        `mapstructure:"cb_failures"`
}

type NotifyConfig struct {
	ReplayRate  float64 `mapstructure:"replay_rate"` // сообщений в секунду
	ReplayBurst int     `mapstructure:"replay_burst"`
	NodeMode    string  `mapstructure:"node_mode"` // memory, redis
	NodeID      string  `mapstructure:"node_id"`
	// Origins — разрешенные Origin для WebSocket
	Origins []string `mapstructure:"origins"`
}

type DirectoryConfig struct {
	ModelPath  string `mapstructure:"model_path"`
	PolicyPath string `mapstructure:"policy_path"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type AuditConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// BROKER_MAX_ATTEMPTS=3 перекроет broker.max_attempts
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Файла нет, работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Сначала PEM прямо из ENV (Docker/K8s), потом файл
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Broker.Backend {
	case "redis", "memory":
	case "kafka":
		if len(c.Broker.Brokers) == 0 {
			return errors.New("config: broker.brokers is required for kafka backend")
		}
	default:
		return fmt.Errorf("config: unknown broker backend %q", c.Broker.Backend)
	}
	if c.Broker.MaxAttempts < 1 {
		return errors.New("config: broker.max_attempts must be positive")
	}
	switch c.Notify.NodeMode {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown notify node mode %q", c.Notify.NodeMode)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("broker.backend", "redis")
	v.SetDefault("broker.group", "stockgate")
	v.SetDefault("broker.max_attempts", 5)
	v.SetDefault("broker.block", 2*time.Second)
	v.SetDefault("broker.claim_idle", time.Minute)
	v.SetDefault("auth.internal_token_ttl", 1*time.Minute)
	v.SetDefault("auth.internal_audience", "stockgate-internal")
	v.SetDefault("auth.issuer", "stockgate")
	v.SetDefault("executor.timeout", 10*time.Second)
	v.SetDefault("executor.cb_max_requests", 1)
	v.SetDefault("executor.cb_interval", 60*time.Second)
	v.SetDefault("executor.cb_timeout", 30*time.Second)
	v.SetDefault("executor.cb_failures", 5)
	v.SetDefault("notify.replay_rate", 20.0)
	v.SetDefault("notify.replay_burst", 5)
	v.SetDefault("notify.node_mode", "memory")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("audit.buffer_size", 1000)
	v.SetDefault("audit.flush_interval", 500*time.Millisecond)
	v.SetDefault("audit.batch_size", 100)
}

// loadKeyResource возвращает PEM из ENV или из файла по пути.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
