package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Paths    PathsConfig    `yaml:"paths"`
	Asterisk AsteriskConfig `yaml:"asterisk"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`

	DefaultAdmin    string `yaml:"default_admin" env:"GUI_DEFAULT_ADMIN" env-default:"admin"`
	DefaultPassword string `yaml:"default_password" env:"GUI_DEFAULT_PASSWORD" env-default:"password123"`
	DefaultEmail    string `yaml:"default_email" env:"GUI_DEFAULT_EMAIL" env-default:"admin@asterisk.local"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port" env:"PORT" env-default:"3000"`
	CORSOrigins    []string      `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:5173"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT" env-default:"60s"`
}

type PathsConfig struct {
	DataDir      string `yaml:"data_dir" env:"DATA_PATH" env-default:"./data"`
	GeneratedDir string `yaml:"generated_dir" env:"GENERATED_CONFIG_PATH" env-default:"./data/generated"`
	SnapshotsDir string `yaml:"snapshots_dir" env:"SNAPSHOTS_PATH" env-default:"./data/snapshots"`
	BackupsDir   string `yaml:"backups_dir" env:"BACKUPS_PATH" env-default:"./data/backups"`
	AsteriskDir  string `yaml:"asterisk_dir" env:"ASTERISK_CONFIG_PATH" env-default:"/etc/asterisk"`
}

type AsteriskConfig struct {
	Host                 string        `yaml:"host" env:"ASTERISK_HOST" env-default:"localhost"`
	Port                 int           `yaml:"ami_port" env:"ASTERISK_AMI_PORT" env-default:"5038"`
	Username             string        `yaml:"ami_username" env:"ASTERISK_AMI_USERNAME" env-default:"admin"`
	Password             string        `yaml:"ami_password" env:"ASTERISK_AMI_PASSWORD" env-default:"amp111"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay" env:"ASTERISK_RECONNECT_DELAY" env-default:"5s"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" env:"ASTERISK_MAX_RECONNECT_ATTEMPTS" env-default:"10"`
	CommandTimeout       time.Duration `yaml:"command_timeout" env:"ASTERISK_COMMAND_TIMEOUT" env-default:"10s"`
	DialTimeout          time.Duration `yaml:"dial_timeout" env:"ASTERISK_DIAL_TIMEOUT" env-default:"5s"`
}

type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"change-me-in-production"`
	JWTExpiresIn     time.Duration `yaml:"jwt_expires_in" env:"JWT_EXPIRES_IN" env-default:"24h"`
	SessionSecret    string        `yaml:"session_secret" env:"SESSION_SECRET" env-default:"change-me-in-production-32bytes!"`
	SessionMaxAge    int           `yaml:"session_max_age" env:"SESSION_MAX_AGE" env-default:"86400"`
	BcryptCost       int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
	MaxLoginAttempts int           `yaml:"max_login_attempts" env:"MAX_LOGIN_ATTEMPTS" env-default:"5"`
	LockoutDuration  time.Duration `yaml:"lockout_duration" env:"LOCKOUT_DURATION" env-default:"15m"`
	LoginRate        float64       `yaml:"login_rate" env:"LOGIN_RATE" env-default:"1"`
	LoginBurst       int           `yaml:"login_burst" env:"LOGIN_BURST" env-default:"10"`
}

type LogConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format     string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"50"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"5"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS" env-default:"30"`
}

type TracingConfig struct {
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"asterisk-gui"`
	Insecure    bool   `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
}

// Load reads configuration from path, or from CONFIG_PATH when path is
// empty. Without a file only environment variables and defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	// Ensure directories exist
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.GeneratedDir, cfg.Paths.SnapshotsDir, cfg.Paths.BackupsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return &cfg, nil
}

// MustLoad is Load for process entry points.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
