package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so values like "90s" can be written in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", value.Value)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	App     App     `yaml:"app"`
	Funding Funding `yaml:"funding"`
	Infra   Infra   `yaml:"infra"`
}

type App struct {
	ServiceName string `yaml:"service_name"`
	Port        int    `yaml:"port"`
}

// Funding carries the deployment knobs the engine refuses to hard-code:
// hold TTL, scheduler cadence and the transfer retry budget.
type Funding struct {
	HoldTTL             Duration `yaml:"hold_ttl"`
	TickInterval        Duration `yaml:"tick_interval"`
	TransferTimeout     Duration `yaml:"transfer_timeout"`
	TransferMaxAttempts int      `yaml:"transfer_max_attempts"`
	RetryBackoffBase    Duration `yaml:"retry_backoff_base"`
}

type Infra struct {
	Redis   Redis   `yaml:"redis"`
	MySQL   MySQL   `yaml:"mysql"`
	Kafka   Kafka   `yaml:"kafka"`
	Jaeger  Jaeger  `yaml:"jaeger"`
	Nacos   Nacos   `yaml:"nacos"`
	Banking Banking `yaml:"banking"`
}

type Redis struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

type MySQL struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DSN renders the connection string through the mysql driver's own config
// type, so charset/parseTime defaults stay in one place.
func (m MySQL) DSN() string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = m.Host + ":" + m.Port
	cfg.User = m.User
	cfg.Passwd = m.Password
	cfg.DBName = m.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

type Kafka struct {
	Brokers     []string `yaml:"brokers"`
	EventsTopic string   `yaml:"events_topic"`
}

type Jaeger struct {
	Endpoint string `yaml:"endpoint"`
}

type Nacos struct {
	ServerAddrs string `yaml:"server_addrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type Banking struct {
	BaseURL       string `yaml:"base_url"`
	SourceAccount string `yaml:"source_account"`
}

// Load reads the YAML file at path and applies environment overrides for the
// endpoints that differ between local runs and the cluster.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	cfg := defaults()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}
	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		App: App{ServiceName: "funding-engine", Port: 8080},
		Funding: Funding{
			HoldTTL:             Duration(10 * time.Minute),
			TickInterval:        Duration(5 * time.Second),
			TransferTimeout:     Duration(10 * time.Second),
			TransferMaxAttempts: 5,
			RetryBackoffBase:    Duration(30 * time.Second),
		},
		Infra: Infra{
			Redis:  Redis{Addr: "localhost:6379"},
			MySQL:  MySQL{Host: "localhost", Port: "3306", User: "root", Database: "cinemoa"},
			Kafka:  Kafka{Brokers: []string{"localhost:9092"}, EventsTopic: "funding-events"},
			Jaeger: Jaeger{Endpoint: "http://localhost:14268/api/traces"},
			Nacos:  Nacos{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP"},
		},
	}
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		cfg.Infra.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("MYSQL_HOST"); ok {
		cfg.Infra.MySQL.Host = v
	}
	if v, ok := os.LookupEnv("MYSQL_PASSWORD"); ok {
		cfg.Infra.MySQL.Password = v
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		cfg.Infra.Nacos.Namespace = v
	}
	if v, ok := os.LookupEnv("BANKING_BASE_URL"); ok {
		cfg.Infra.Banking.BaseURL = v
	}
}
