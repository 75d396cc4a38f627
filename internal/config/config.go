// Package config centraliza o carregamento de configurações da aplicação.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/JeanGrijp/waitlist-ratelimit/internal/core/domain"
)

const (
	defaultLocalCapacity  = 1000
	defaultConnectTimeout = 5 * time.Second
	defaultCommandTimeout = 300 * time.Millisecond
	defaultKeyPrefix      = "rl:"
	defaultPlatformHeader = "CF-Connecting-IP"
)

type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Redis       RedisConfig
	Identity    IdentityConfig
	CORS        CORSConfig
	RateLimiter RateLimiterConfig
}

type ServerConfig struct {
	Port    string
	Env     string
	Version string
}

func (s ServerConfig) Production() bool {
	return strings.EqualFold(s.Env, "production")
}

type LogConfig struct {
	Level string
}

type RedisConfig struct {
	URL            string
	Enabled        bool
	Prefix         string
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

type IdentityConfig struct {
	TrustForwarded bool
	PlatformHeader string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimiterConfig struct {
	LocalCapacity int
	Rules         map[domain.Scope]domain.RateLimitRule
}

// DefaultRules devolve os limites de cada escopo conhecido.
func DefaultRules() map[domain.Scope]domain.RateLimitRule {
	return map[domain.Scope]domain.RateLimitRule{
		domain.ScopeGlobal:     {Requests: 100, Window: time.Minute},
		domain.ScopeWaitlist:   {Requests: 10, Window: time.Minute},
		domain.ScopeAdminLogin: {Requests: 5, Window: 15 * time.Minute},
	}
}

// Load lê o .env (quando existir) e as variáveis de ambiente.
func Load() (Config, error) {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "development")
	server := ServerConfig{
		Port:    getEnv("PORT", "8080"),
		Env:     env,
		Version: getEnv("APP_VERSION", "dev"),
	}

	redisConfig, err := buildRedisConfig()
	if err != nil {
		return Config{}, err
	}

	identity, err := buildIdentityConfig()
	if err != nil {
		return Config{}, err
	}

	rateLimiterConfig, err := buildRateLimiterConfig()
	if err != nil {
		return Config{}, err
	}

	return Config{
		Server:      server,
		Log:         LogConfig{Level: os.Getenv("LOG_LEVEL")},
		Redis:       redisConfig,
		Identity:    identity,
		CORS:        buildCORSConfig(),
		RateLimiter: rateLimiterConfig,
	}, nil
}

func buildRedisConfig() (RedisConfig, error) {
	url := strings.TrimSpace(os.Getenv("REDIS_URL"))

	enabled, err := getBool("USE_REDIS_RATE_LIMIT", url != "")
	if err != nil {
		return RedisConfig{}, err
	}
	if url == "" {
		enabled = false
	}

	connectTimeout, err := getDuration("REDIS_CONNECT_TIMEOUT", defaultConnectTimeout)
	if err != nil {
		return RedisConfig{}, err
	}
	commandTimeout, err := getDuration("REDIS_COMMAND_TIMEOUT", defaultCommandTimeout)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		URL:            url,
		Enabled:        enabled,
		Prefix:         getEnv("REDIS_KEY_PREFIX", defaultKeyPrefix),
		ConnectTimeout: connectTimeout,
		CommandTimeout: commandTimeout,
	}, nil
}

func buildIdentityConfig() (IdentityConfig, error) {
	trust, err := getBool("TRUST_PROXY_FORWARDED", false)
	if err != nil {
		return IdentityConfig{}, err
	}
	return IdentityConfig{
		TrustForwarded: trust,
		PlatformHeader: getEnv("TRUSTED_PROXY_HEADER", defaultPlatformHeader),
	}, nil
}

// buildCORSConfig lê CORS_ORIGIN, uma lista separada por vírgulas. Vazio libera qualquer origem.
func buildCORSConfig() CORSConfig {
	var origins []string
	for _, origin := range strings.Split(os.Getenv("CORS_ORIGIN"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return CORSConfig{AllowedOrigins: origins}
}

func buildRateLimiterConfig() (RateLimiterConfig, error) {
	cfg := RateLimiterConfig{
		LocalCapacity: defaultLocalCapacity,
		Rules:         DefaultRules(),
	}

	if path := strings.TrimSpace(os.Getenv("RATE_LIMIT_POLICY_FILE")); path != "" {
		policy, err := LoadPolicyFile(path)
		if err != nil {
			return RateLimiterConfig{}, err
		}
		if policy.LocalCapacity > 0 {
			cfg.LocalCapacity = policy.LocalCapacity
		}
		for scope, rule := range policy.rules() {
			cfg.Rules[scope] = rule
		}
	}

	capacity, err := getInt("RATE_LIMIT_LOCAL_CAPACITY", cfg.LocalCapacity)
	if err != nil {
		return RateLimiterConfig{}, err
	}
	if capacity <= 0 {
		return RateLimiterConfig{}, fmt.Errorf("RATE_LIMIT_LOCAL_CAPACITY must be positive")
	}
	cfg.LocalCapacity = capacity

	for scope, rule := range cfg.Rules {
		overridden, err := buildScopeRule(scope, rule)
		if err != nil {
			return RateLimiterConfig{}, err
		}
		cfg.Rules[scope] = overridden
	}

	overrides, err := buildScopeOverrides()
	if err != nil {
		return RateLimiterConfig{}, err
	}
	for scope, rule := range overrides {
		cfg.Rules[scope] = rule
	}

	return cfg, nil
}

// buildScopeRule aplica RATE_LIMIT_<ESCOPO>_REQUESTS e RATE_LIMIT_<ESCOPO>_WINDOW_SECONDS.
func buildScopeRule(scope domain.Scope, rule domain.RateLimitRule) (domain.RateLimitRule, error) {
	prefix := "RATE_LIMIT_" + envName(scope)

	requests, err := getInt(prefix+"_REQUESTS", rule.Requests)
	if err != nil {
		return domain.RateLimitRule{}, err
	}
	windowSeconds, err := getInt(prefix+"_WINDOW_SECONDS", int(rule.Window/time.Second))
	if err != nil {
		return domain.RateLimitRule{}, err
	}

	overridden := domain.RateLimitRule{
		Requests: requests,
		Window:   time.Duration(windowSeconds) * time.Second,
	}
	if !overridden.Valid() {
		return domain.RateLimitRule{}, fmt.Errorf("rate limit for scope %s must have positive values", scope)
	}
	return overridden, nil
}

// buildScopeOverrides lê RATE_LIMIT_SCOPES no formato escopo:requisições:janela_segundos,...
func buildScopeOverrides() (map[domain.Scope]domain.RateLimitRule, error) {
	raw := strings.TrimSpace(os.Getenv("RATE_LIMIT_SCOPES"))
	if raw == "" {
		return map[domain.Scope]domain.RateLimitRule{}, nil
	}

	overrides := make(map[domain.Scope]domain.RateLimitRule)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("scope override must follow SCOPE:REQUESTS:WINDOW_SECONDS: %s", item)
		}

		scope := domain.Scope(strings.TrimSpace(parts[0]))
		if scope == "" {
			return nil, fmt.Errorf("scope override without scope name: %s", item)
		}
		requests, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid requests for scope %s: %w", scope, err)
		}
		windowSeconds, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("invalid window seconds for scope %s: %w", scope, err)
		}

		rule := domain.RateLimitRule{Requests: requests, Window: time.Duration(windowSeconds) * time.Second}
		if !rule.Valid() {
			return nil, fmt.Errorf("rate limit for scope %s must have positive values", scope)
		}
		overrides[scope] = rule
	}

	return overrides, nil
}

// PolicyFile descreve o arquivo YAML opcional de políticas.
type PolicyFile struct {
	LocalCapacity int                   `yaml:"local_capacity"`
	Scopes        map[string]PolicyRule `yaml:"scopes"`
}

type PolicyRule struct {
	Requests      int `yaml:"requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

func LoadPolicyFile(path string) (PolicyFile, error) {
	var policy PolicyFile
	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return policy, fmt.Errorf("parse policy file: %w", err)
	}
	if policy.LocalCapacity < 0 {
		return policy, fmt.Errorf("policy file: local_capacity must not be negative")
	}
	for name, rule := range policy.Scopes {
		if strings.TrimSpace(name) == "" {
			return policy, fmt.Errorf("policy file: scope without name")
		}
		if rule.Requests <= 0 || rule.WindowSeconds <= 0 {
			return policy, fmt.Errorf("policy file: scope %s must have positive requests and window_seconds", name)
		}
	}
	return policy, nil
}

func (p PolicyFile) rules() map[domain.Scope]domain.RateLimitRule {
	rules := make(map[domain.Scope]domain.RateLimitRule, len(p.Scopes))
	for name, rule := range p.Scopes {
		rules[domain.Scope(strings.TrimSpace(name))] = domain.RateLimitRule{
			Requests: rule.Requests,
			Window:   time.Duration(rule.WindowSeconds) * time.Second,
		}
	}
	return rules
}

func envName(scope domain.Scope) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(string(scope)))
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// getDuration aceita durações Go ("300ms", "5s") ou um inteiro em milissegundos.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	if ms, err := strconv.Atoi(value); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("invalid %s: must be positive", key)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
