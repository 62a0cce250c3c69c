package config

import (
	"log"
	"os"
	"time"

	"scraping_service/internal/models"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env-default:"local"`
	JWTSecret  string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	HTTPServer `yaml:"http_server"`
	Postgres   `yaml:"postgres"`
	Redis      `yaml:"redis"`
	RabbitMQ   `yaml:"rabbitmq"`
	Notifier   `yaml:"notifier"`
	Browser    `yaml:"browser"`
	Vendors    `yaml:"vendors"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"password" env-required:"true"`
	DBName   string `yaml:"dbname" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Redis struct {
	Addr        string        `yaml:"addr" env-default:"redis:6379"`
	Db          int           `yaml:"db" env-default:"1"`
	ProgressTTL time.Duration `yaml:"progress_ttl" env-default:"24h"`
}

type RabbitMQ struct {
	URL            string `yaml:"url" env-required:"true"`
	EventQueue     string `yaml:"event_queue" env-default:"scrape_events"`
	RescrapeQueue  string `yaml:"rescrape_queue" env-default:"rescrape_requests"`
	WorkerPoolSize int    `yaml:"worker_pool_size" env-default:"2"`
}

type Notifier struct {
	// Sink is "webhook" or "amqp".
	Sink       string        `yaml:"sink" env-default:"webhook"`
	WebhookURL string        `yaml:"webhook_url" env-default:""`
	Timeout    time.Duration `yaml:"timeout" env-default:"30s"`
}

type Browser struct {
	// PostalCode is applied once per pass so amazonau pages reflect local stock.
	PostalCode  string        `yaml:"postal_code" env-default:"2000"`
	Headless    bool          `yaml:"headless" env-default:"true"`
	PageTimeout time.Duration `yaml:"page_timeout" env-default:"45s"`
}

// Vendor holds the per-vendor tuning knobs. The values are empirical, not
// derived; config.yaml carries the numbers that match each vendor's tolerance.
type Vendor struct {
	Concurrency      int           `yaml:"concurrency" env-default:"5"`
	BatchSize        int           `yaml:"batch_size" env-default:"25"`
	RescrapeBatch    int           `yaml:"rescrape_batch" env-default:"10"`
	Timeout          time.Duration `yaml:"timeout" env-default:"30s"`
	RetryLimit       int           `yaml:"retry_limit" env-default:"1"`
	BackoffBase      time.Duration `yaml:"backoff_base" env-default:"1s"`
	JitterMin        time.Duration `yaml:"jitter_min" env-default:"1s"`
	JitterMax        time.Duration `yaml:"jitter_max" env-default:"3s"`
	RequestDelayMin  time.Duration `yaml:"request_delay_min" env-default:"0s"`
	RequestDelayMax  time.Duration `yaml:"request_delay_max" env-default:"0s"`
	PersistChunkSize int           `yaml:"persist_chunk_size" env-default:"100"`
	Rules            Rules         `yaml:"rules"`
}

// Rules externalizes the business constants the rule engines apply. The
// defaults are the values the pricing team mandated, not derived figures.
type Rules struct {
	FallbackPrice   float64 `yaml:"fallback_price" env-default:"489.99"`
	LimitedSentinel int     `yaml:"limited_sentinel" env-default:"1"`
	InStockSentinel int     `yaml:"in_stock_sentinel" env-default:"3"`
	MaxHandlingDays int     `yaml:"max_handling_days" env-default:"2"`
	MaxDeliveryDays int     `yaml:"max_delivery_days" env-default:"7"`
	CurrencyMarker  string  `yaml:"currency_marker" env-default:"AU $"`
	SessionCookies  string  `yaml:"session_cookies" env-default:""`
}

type Vendors struct {
	EbayUS   Vendor `yaml:"ebayus"`
	EbayAU   Vendor `yaml:"ebayau"`
	CostcoAU Vendor `yaml:"costcoau"`
	AmazonAU Vendor `yaml:"amazonau"`
}

// ForKind returns the tuning block for a vendor kind.
func (v Vendors) ForKind(kind models.VendorKind) Vendor {
	switch kind {
	case models.VendorEbayUS:
		return v.EbayUS
	case models.VendorEbayAU:
		return v.EbayAU
	case models.VendorCostcoAU:
		return v.CostcoAU
	case models.VendorAmazonAU:
		return v.AmazonAU
	}
	return Vendor{}
}

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", configPath)
	}

	return &cfg
}
