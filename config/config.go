package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.yaml.in/yaml/v4"
)

// ProviderEnvPrefix: префикс переменных окружения, перекрывающих секцию provider.
const ProviderEnvPrefix = "TRACKRISK_PROVIDER"

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	TrackRisk TrackRiskConfig `yaml:"trackrisk"`
	Provider  ProviderConfig  `yaml:"provider"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host                      string `yaml:"host"`
	Port                      int    `yaml:"port"`
	TrackingCheckedTopicName  string `yaml:"tracking_checked_topic_name"`
	OrderTransitionsTopicName string `yaml:"order_transitions_topic_name"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

func (k KafkaConfig) CheckedTopic() string {
	if k.TrackingCheckedTopicName == "" {
		return "tracking.checked"
	}
	return k.TrackingCheckedTopicName
}

func (k KafkaConfig) TransitionsTopic() string {
	if k.OrderTransitionsTopicName == "" {
		return "order.transitions"
	}
	return k.OrderTransitionsTopicName
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type TrackRiskConfig struct {
	HTTPAddr                string `yaml:"http_addr"`
	KafkaConsumerGroup      string `yaml:"kafka_consumer_group"`
	CurrentStatusTTLSeconds int    `yaml:"current_status_ttl_seconds"`
	BulkCheckConcurrency    int    `yaml:"bulk_check_concurrency"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int `yaml:"worker_batch_size"`
	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int `yaml:"worker_lease_seconds"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`
	WorkerCheckDelayMillis    int `yaml:"worker_check_delay_millis"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// Расписание следующих проверок (опционально). Если не задано:
	// in_transit/out_for_delivery 60..120 минут, pre_transit/unknown 90 минут,
	// red 30 минут, delivered 365 дней, backoff 5/15/30/60 минут.
	WorkerNextCheckInTransitMinSeconds int `yaml:"worker_next_check_in_transit_min_seconds"`
	WorkerNextCheckInTransitMaxSeconds int `yaml:"worker_next_check_in_transit_max_seconds"`
	WorkerNextCheckUnknownSeconds      int `yaml:"worker_next_check_unknown_seconds"`
	WorkerNextCheckRedSeconds          int `yaml:"worker_next_check_red_seconds"`
	WorkerNextCheckDeliveredSeconds    int `yaml:"worker_next_check_delivered_seconds"`
	WorkerBackoff1Seconds              int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds              int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds              int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds              int `yaml:"worker_backoff_4_seconds"`
}

func (t TrackRiskConfig) CurrentStatusTTL() time.Duration {
	ttl := time.Duration(t.CurrentStatusTTLSeconds) * time.Second
	if ttl <= 0 {
		return 10 * time.Minute
	}
	return ttl
}

// ProviderConfig выбирает адаптер трекинг-API. Пустой api_key включает
// офлайн-режим: адаптер отдаёт мок-данные.
type ProviderConfig struct {
	Kind           string `yaml:"kind" envconfig:"KIND"`               // mock | 17track | aftership
	APIVersion     string `yaml:"api_version" envconfig:"API_VERSION"` // aftership: v4 | 2024-07
	BaseURL        string `yaml:"base_url" envconfig:"BASE_URL"`
	APIKey         string `yaml:"api_key" envconfig:"API_KEY"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`
	MockScenarios  bool   `yaml:"mock_scenarios" envconfig:"MOCK_SCENARIOS"`
}

func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	// Ключи API не храним в файле: переменные окружения перекрывают yaml.
	if err := envconfig.Process(ProviderEnvPrefix, &config.Provider); err != nil {
		return nil, fmt.Errorf("failed to read provider env: %w", err)
	}

	return &config, nil
}

// ProviderFromEnv собирает секцию provider только из переменных окружения.
func ProviderFromEnv() (ProviderConfig, error) {
	var p ProviderConfig
	if err := envconfig.Process(ProviderEnvPrefix, &p); err != nil {
		return ProviderConfig{}, fmt.Errorf("failed to read provider env: %w", err)
	}
	return p, nil
}
