// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ConfigEnv 指定 YAML 配置文件路径的环境变量
const ConfigEnv = "STOCKGATE_CONFIG"

// Config 是服务的完整配置，在 main 中加载后通过构造函数显式传递
type Config struct {
	App          AppConfig          `yaml:"app"`
	Log          LogConfig          `yaml:"log"`
	Redis        RedisConfig        `yaml:"redis"`
	MySQL        MySQLConfig        `yaml:"mysql"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Settlement   SettlementConfig   `yaml:"settlement"`
	Compensation CompensationConfig `yaml:"compensation"`
	Policy       PolicyConfig       `yaml:"policy"`
	Push         PushConfig         `yaml:"push"`
	Infra        InfraConfig        `yaml:"infra"`
}

type AppConfig struct {
	Name            string        `yaml:"name"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// RedisConfig: Addrs 为 endpoint，DB 为命名空间
type RedisConfig struct {
	Addrs           []string      `yaml:"addrs"`
	DB              int           `yaml:"db"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	RefundMarkerTTL time.Duration `yaml:"refund_marker_ttl"`
}

// MySQLConfig: Endpoint 为 host:port，Database 为分区
type MySQLConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// DSN 生成 go-sql-driver 格式的连接串
func (c MySQLConfig) DSN() string {
	dc := mysqldriver.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = c.Endpoint
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc.FormatDSN()
}

type KafkaConfig struct {
	Brokers         []string `yaml:"brokers"`
	SettlementTopic string   `yaml:"settlement_topic"`
	DeadLetterTopic string   `yaml:"dead_letter_topic"`
	OutcomeTopic    string   `yaml:"outcome_topic"`
	GroupID         string   `yaml:"group_id"`
}

type SettlementConfig struct {
	Workers        int           `yaml:"workers"`
	MaxAttempts    int           `yaml:"max_attempts"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	BackoffBase    time.Duration `yaml:"backoff_base"`
}

type CompensationConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

type PolicyConfig struct {
	Expression string `yaml:"expression"`
}

// PushConfig 是 push-gateway 独有的配置
type PushConfig struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	LockRoot       string        `yaml:"lock_root"`
}

type NacosConfig struct {
	Enabled     bool     `yaml:"enabled"`
	ServerAddrs []string `yaml:"server_addrs"`
	Namespace   string   `yaml:"namespace"`
	Group       string   `yaml:"group"`
}

// DefaultConfig 返回与本地 docker-compose 环境对应的默认配置
func DefaultConfig() Config {
	return Config{
		App: AppConfig{
			Name:            "inventory-service",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Redis: RedisConfig{
			Addrs:           []string{"localhost:6379"},
			RefundMarkerTTL: 7 * 24 * time.Hour,
		},
		MySQL: MySQLConfig{
			Endpoint:     "localhost:3306",
			Database:     "stockgate",
			User:         "root",
			Password:     "root",
			MaxOpenConns: 50,
			AutoMigrate:  true,
		},
		Kafka: KafkaConfig{
			Brokers:         []string{"localhost:9092"},
			SettlementTopic: "stock-settlement-tasks",
			DeadLetterTopic: "stock-settlement-tasks-dlt",
			OutcomeTopic:    "stock-settlement-outcomes",
			GroupID:         "stockgate-settlement",
		},
		Settlement: SettlementConfig{
			Workers:        4,
			MaxAttempts:    3,
			AttemptTimeout: 5 * time.Second,
			BackoffBase:    200 * time.Millisecond,
		},
		Compensation: CompensationConfig{
			MaxAttempts: 5,
			Backoff:     100 * time.Millisecond,
		},
		Policy: PolicyConfig{Expression: "quantity > 0"},
		Push: PushConfig{
			Name: "push-gateway",
			Port: 8081,
		},
		Infra: InfraConfig{
			Jaeger: JaegerConfig{SampleRatio: 1},
			Zookeeper: ZookeeperConfig{
				SessionTimeout: 5 * time.Second,
				LockRoot:       "/stockgate/locks",
			},
			Nacos: NacosConfig{
				ServerAddrs: []string{"localhost:8848"},
				Group:       "DEFAULT_GROUP",
			},
		},
	}
}

// LoadConfig 依次应用默认值、YAML 文件（path 为空则跳过）和环境变量，最后校验
func LoadConfig(path string) (Config, error) {
	cfg, err := load(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadPushGatewayConfig 加载同一份配置，但以 push 段覆盖服务名和端口，
// 并且只校验推送网关用到的字段
func LoadPushGatewayConfig(path string) (Config, error) {
	cfg, err := load(path)
	if err != nil {
		return Config{}, err
	}
	cfg.App.Name = cfg.Push.Name
	cfg.App.Port = cfg.Push.Port
	if err := cfg.ValidatePushGateway(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.App.Name = getEnv("APP_NAME", c.App.Name)
	if v, ok := os.LookupEnv("HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid HTTP_PORT %q", v)
		}
		c.App.Port = port
	}
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	if v, ok := os.LookupEnv("PUSH_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid PUSH_PORT %q", v)
		}
		c.Push.Port = port
	}

	c.Redis.Addrs = getEnvList("REDIS_ADDRS", c.Redis.Addrs)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.MySQL.Endpoint = getEnv("MYSQL_ENDPOINT", c.MySQL.Endpoint)
	c.MySQL.Database = getEnv("MYSQL_DATABASE", c.MySQL.Database)
	c.MySQL.User = getEnv("MYSQL_USER", c.MySQL.User)
	c.MySQL.Password = getEnv("MYSQL_PASSWORD", c.MySQL.Password)

	c.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	if v, ok := os.LookupEnv("SETTLEMENT_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid SETTLEMENT_WORKERS %q", v)
		}
		c.Settlement.Workers = n
	}

	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	c.Infra.Zookeeper.Servers = getEnvList("ZK_SERVERS", c.Infra.Zookeeper.Servers)
	c.Infra.Nacos.ServerAddrs = getEnvList("NACOS_SERVER_ADDRS", c.Infra.Nacos.ServerAddrs)
	c.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", c.Infra.Nacos.Namespace)
	c.Infra.Nacos.Group = getEnv("NACOS_GROUP", c.Infra.Nacos.Group)
	if v, ok := os.LookupEnv("NACOS_ENABLED"); ok {
		c.Infra.Nacos.Enabled = v == "true" || v == "1"
	}
	return nil
}

// Validate 检查配置的完整性
func (c Config) Validate() error {
	switch {
	case c.App.Name == "":
		return errors.New("config: app.name is required")
	case c.App.Port <= 0 || c.App.Port > 65535:
		return errors.Errorf("config: app.port %d out of range", c.App.Port)
	case len(c.Redis.Addrs) == 0:
		return errors.New("config: redis.addrs is required")
	case c.Redis.RefundMarkerTTL <= 0:
		return errors.New("config: redis.refund_marker_ttl must be positive")
	case c.MySQL.Endpoint == "" || c.MySQL.Database == "":
		return errors.New("config: mysql.endpoint and mysql.database are required")
	case len(c.Kafka.Brokers) == 0:
		return errors.New("config: kafka.brokers is required")
	case c.Kafka.SettlementTopic == "" || c.Kafka.DeadLetterTopic == "" || c.Kafka.GroupID == "":
		return errors.New("config: kafka settlement_topic, dead_letter_topic and group_id are required")
	case c.Settlement.Workers <= 0:
		return errors.New("config: settlement.workers must be positive")
	case c.Settlement.MaxAttempts <= 0:
		return errors.New("config: settlement.max_attempts must be positive")
	case c.Settlement.AttemptTimeout <= 0:
		return errors.New("config: settlement.attempt_timeout must be positive")
	case c.Compensation.MaxAttempts <= 0:
		return errors.New("config: compensation.max_attempts must be positive")
	case c.Policy.Expression == "":
		return errors.New("config: policy.expression is required")
	case c.Infra.Nacos.Enabled && len(c.Infra.Nacos.ServerAddrs) == 0:
		return errors.New("config: infra.nacos.server_addrs is required when nacos is enabled")
	}
	return nil
}

// ValidatePushGateway 只检查推送网关依赖的字段
func (c Config) ValidatePushGateway() error {
	switch {
	case c.App.Name == "":
		return errors.New("config: push.name is required")
	case c.App.Port <= 0 || c.App.Port > 65535:
		return errors.Errorf("config: push.port %d out of range", c.App.Port)
	case len(c.Kafka.Brokers) == 0:
		return errors.New("config: kafka.brokers is required")
	case c.Kafka.OutcomeTopic == "" || c.Kafka.GroupID == "":
		return errors.New("config: kafka outcome_topic and group_id are required for push-gateway")
	case c.Infra.Nacos.Enabled && len(c.Infra.Nacos.ServerAddrs) == 0:
		return errors.New("config: infra.nacos.server_addrs is required when nacos is enabled")
	}
	return nil
}

// getEnv 从环境变量中读取配置
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
