package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type DB struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Pass     string `mapstructure:"password"`
	Name     string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// Enabled reports whether a Postgres store is configured; otherwise the
// in-memory stores are used.
func (d DB) Enabled() bool { return d.Host != "" }

func (d DB) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		d.User, d.Pass, d.Host, d.Port, d.Name, d.SSLMode, d.MaxConns)
}

type MQ struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Pass     string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Exchange string `mapstructure:"exchange"`
	Prefetch int    `mapstructure:"prefetch"`
}

func (m MQ) Enabled() bool { return m.Host != "" }

type Server struct {
	Addr         string        `mapstructure:"addr"`
	StaffKey     string        `mapstructure:"staff_key"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type Session struct {
	Duration      time.Duration `mapstructure:"duration"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type Broadcast struct {
	QueueSize  int           `mapstructure:"queue_size"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
}

type Sync struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	DegradedAfter int           `mapstructure:"degraded_after"`
}

type App struct {
	LogLevel  string    `mapstructure:"log_level"`
	Database  DB        `mapstructure:"database"`
	Rabbit    MQ        `mapstructure:"rabbitmq"`
	Server    Server    `mapstructure:"server"`
	Session   Session   `mapstructure:"session"`
	Broadcast Broadcast `mapstructure:"broadcast"`
	Sync      Sync      `mapstructure:"sync"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.vhost", "/")
	v.SetDefault("rabbitmq.exchange", "order_events")
	v.SetDefault("rabbitmq.prefetch", 50)

	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("session.duration", 10800*time.Second)
	v.SetDefault("session.sweep_interval", 30*time.Second)

	v.SetDefault("broadcast.queue_size", 64)
	v.SetDefault("broadcast.write_wait", 10*time.Second)
	v.SetDefault("broadcast.ping_period", 30*time.Second)

	v.SetDefault("sync.poll_interval", 15000*time.Millisecond)
	v.SetDefault("sync.degraded_after", 3)
}

// Load reads the YAML file at path (empty path means defaults plus
// environment only). Every key can be overridden with RSYNC_<SECTION>_<KEY>.
func Load(path string) (App, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("rsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return App{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var a App
	if err := v.Unmarshal(&a); err != nil {
		return App{}, fmt.Errorf("decode config: %w", err)
	}
	if err := a.Validate(); err != nil {
		return App{}, err
	}
	return a, nil
}

// AutomaticEnv only resolves keys viper already knows about, so the
// connection keys without defaults are bound explicitly.
func bindEnv(v *viper.Viper) {
	for _, k := range []string{
		"database.host", "database.user", "database.password", "database.database",
		"rabbitmq.host", "rabbitmq.user", "rabbitmq.password",
		"server.staff_key",
	} {
		_ = v.BindEnv(k)
	}
}

func (a App) Validate() error {
	var errs []error
	if a.Database.Enabled() && (a.Database.User == "" || a.Database.Name == "") {
		errs = append(errs, errors.New("database config incomplete: user and database are required"))
	}
	if a.Rabbit.Enabled() && a.Rabbit.User == "" {
		errs = append(errs, errors.New("rabbitmq config incomplete: user is required"))
	}
	if a.Session.Duration <= 0 {
		errs = append(errs, errors.New("session.duration must be positive"))
	}
	if a.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session.sweep_interval must be positive"))
	}
	if a.Broadcast.PingPeriod <= 0 || a.Broadcast.WriteWait <= 0 {
		errs = append(errs, errors.New("broadcast.ping_period and broadcast.write_wait must be positive"))
	}
	if a.Sync.PollInterval <= 0 {
		errs = append(errs, errors.New("sync.poll_interval must be positive"))
	}
	if a.Broadcast.QueueSize <= 0 {
		errs = append(errs, errors.New("broadcast.queue_size must be positive"))
	}
	return errors.Join(errs...)
}

func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
