package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Routing  RoutingConfig
	Region   RegionConfig
	Regions  []RegionEndpoint
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

// RoutingConfig points at the external route source (OSRM-compatible).
type RoutingConfig struct {
	BaseURL  string
	CacheTTL time.Duration
}

// RegionConfig identifies which region a regional instance serves.
type RegionConfig struct {
	Name string
}

// RegionEndpoint is one downstream regional service the coordinator talks to.
type RegionEndpoint struct {
	Name    string
	BaseURL string
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080"
	}

	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid SERVER_PORT: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	postgresHost := os.Getenv("POSTGRES_HOST")
	if postgresHost == "" {
		postgresHost = "localhost"
	}

	postgresPortStr := os.Getenv("POSTGRES_PORT")
	if postgresPortStr == "" {
		postgresPortStr = "5432"
	}

	postgresPort, err := strconv.Atoi(postgresPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid POSTGRES_PORT: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	postgresSSLMode := os.Getenv("POSTGRES_SSLMODE")
	if postgresSSLMode == "" {
		postgresSSLMode = "disable"
	}

	postgresCfg := PostgresConfig{
		User:     postgresUser,
		Password: postgresPassword,
		Name:     postgresDB,
		Host:     postgresHost,
		Port:     postgresPort,
		SSLMode:  postgresSSLMode,
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisCfg := RedisConfig{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	}

	routingURL := os.Getenv("OSRM_BASE_URL")
	if routingURL == "" {
		routingURL = "https://router.project-osrm.org"
	}

	routeTTL := 5 * time.Minute
	if s := os.Getenv("ROUTE_CACHE_TTL"); s != "" {
		routeTTL, err = time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid ROUTE_CACHE_TTL: %w", op, err)
		}
	}

	routingCfg := RoutingConfig{
		BaseURL:  routingURL,
		CacheTTL: routeTTL,
	}

	regionCfg := RegionConfig{
		Name: os.Getenv("REGION_NAME"),
	}

	regions, err := parseRegions(os.Getenv("REGIONS"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Config{
		Server:   serverCfg,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		Routing:  routingCfg,
		Region:   regionCfg,
		Regions:  regions,
	}, nil
}

// parseRegions parses "ireland=http://host:8081,london=http://host:8082".
func parseRegions(raw string) ([]RegionEndpoint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []RegionEndpoint
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		name, url, ok := strings.Cut(pair, "=")
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid REGIONS entry %q", pair)
		}

		out = append(out, RegionEndpoint{
			Name:    strings.TrimSpace(name),
			BaseURL: strings.TrimSpace(url),
		})
	}

	return out, nil
}
