package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=oficina port=5432 sslmode=disable"

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Redis    RedisConfig
	HTTP     HTTPConfig
	Log      LogConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

type DatabaseConfig struct {
	Driver          string // postgres | sqlite
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxTimeout       time.Duration
	AutoMigrate     bool
	SlowThreshold   time.Duration
}

type AuthConfig struct {
	JWTSecret          string
	SessionTTL         time.Duration
	CookieName         string
	CookieSecure       bool
	AdminName          string
	AdminEmail         string
	AdminPassword      string
	LoginRatePerMinute int
	LoginBurst         int
}

// Addr vazio: revogação de sessão fica em memória.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type HTTPConfig struct {
	CORSOrigins  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

// Load lê a configuração na ordem: variáveis OFICINA_*, config.yaml, padrões.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/oficina")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("erro lendo arquivo de configuração: %w", err)
		}
	}

	v.SetEnvPrefix("OFICINA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			TxTimeout:       v.GetDuration("database.tx_timeout"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
		},
		Auth: AuthConfig{
			JWTSecret:          v.GetString("auth.jwt_secret"),
			SessionTTL:         v.GetDuration("auth.session_ttl"),
			CookieName:         v.GetString("auth.cookie_name"),
			CookieSecure:       v.GetBool("auth.cookie_secure"),
			AdminName:          v.GetString("auth.admin_name"),
			AdminEmail:         v.GetString("auth.admin_email"),
			AdminPassword:      v.GetString("auth.admin_password"),
			LoginRatePerMinute: v.GetInt("auth.login_rate_per_minute"),
			LoginBurst:         v.GetInt("auth.login_burst"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		HTTP: HTTPConfig{
			CORSOrigins:  v.GetString("http.cors_origins"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			BodyLimit:    v.GetInt("http.body_limit"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	// auto_migrate ligado por padrão; viper não distingue "false" de ausente com GetBool
	if !v.IsSet("database.auto_migrate") {
		cfg.Database.AutoMigrate = true
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "oficina-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "3000"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.DSN == "" {
		if cfg.Database.Driver == "sqlite" {
			cfg.Database.DSN = "oficina.db"
		} else {
			cfg.Database.DSN = defaultDSN
		}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.TxTimeout == 0 {
		cfg.Database.TxTimeout = 10 * time.Second
	}
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = 200 * time.Millisecond
	}

	if cfg.Auth.SessionTTL == 0 {
		cfg.Auth.SessionTTL = 24 * time.Hour
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "oficina_session"
	}
	if cfg.Auth.AdminName == "" {
		cfg.Auth.AdminName = "Administrador"
	}
	if cfg.Auth.AdminEmail == "" {
		cfg.Auth.AdminEmail = "admin@oficina.com"
	}
	if cfg.Auth.LoginRatePerMinute == 0 {
		cfg.Auth.LoginRatePerMinute = 10
	}
	if cfg.Auth.LoginBurst == 0 {
		cfg.Auth.LoginBurst = 5
	}

	if cfg.HTTP.CORSOrigins == "" {
		cfg.HTTP.CORSOrigins = "http://localhost:5173"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.BodyLimit == 0 {
		cfg.HTTP.BodyLimit = 10 * 1024 * 1024
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		if cfg.IsProduction() {
			cfg.Log.Format = "json"
		} else {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret é obrigatório (OFICINA_AUTH_JWT_SECRET)")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret deve ter pelo menos 32 caracteres")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver inválido: %q (postgres|sqlite)", c.Database.Driver)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) não pode exceder database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.IsProduction() {
		if c.Database.DSN == defaultDSN {
			return fmt.Errorf("database.dsn padrão não pode ser usado em produção")
		}
		if !c.Auth.CookieSecure {
			return fmt.Errorf("auth.cookie_secure deve ser true em produção")
		}
		for _, origin := range c.CORSOriginList() {
			if origin == "*" {
				return fmt.Errorf("http.cors_origins não pode ser '*' em produção")
			}
		}
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// CORSOriginList separa a lista de origens (vírgula) e remove espaços.
func (c *Config) CORSOriginList() []string {
	origins := strings.Split(c.HTTP.CORSOrigins, ",")
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
