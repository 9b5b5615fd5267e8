package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug            bool
		TestMode         bool
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		SecretKey        []byte
		FrontendBaseURL  string
		DefaultFromEmail string

		SendgridAPIKey string
		RollbarToken   string

		Server    ServerConfig
		Database  DatabaseConfig
		Redis     RedisConfig
		Auth      AuthConfig
		Messaging MessagingConfig
		Stream    StreamConfig
	}

	ServerConfig struct {
		Host            string
		Addr            string
		DebugAddr       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	AuthConfig struct {
		AccessTokenTTL  time.Duration
		RefreshTokenTTL time.Duration
		OTPLength       int
		OTPTTL          time.Duration
	}

	MessagingConfig struct {
		RateLimit  int           // max messages per principal per window
		RateWindow time.Duration // fixed window size
	}

	StreamConfig struct {
		QueueSize         int           // pending events per connection before drops
		KeepaliveInterval time.Duration // idle interval between SSE comments
	}
)

func (c DatabaseConfig) Address() string {
	return c.Host + ":" + c.Port
}

// NewConfig loads the app configuration from the environment,
// with an optional config/.env.<env> file for local development.
func NewConfig() *Config {
	conf := viper.New()
	conf.SetTypeByDefaultValue(true)

	// defaults
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "BellBook")
	conf.SetDefault("build", "dev")
	conf.SetDefault("secretKey", "+x2byps*45@e&9%u4fdve0-6k5)=dz&u$+57oxh2(h!x)#*c2(")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("serverHost", "localhost")
	conf.SetDefault("serverAddr", ":8000")
	conf.SetDefault("serverDebugAddr", ":4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", "5432")
	conf.SetDefault("dbUser", "bellbook")
	conf.SetDefault("dbPassword", "")
	conf.SetDefault("dbAdminUser", "")
	conf.SetDefault("dbAdminPassword", "")
	conf.SetDefault("dbName", "bellbook")
	conf.SetDefault("dbDisableTLS", true)
	conf.SetDefault("redisAddr", "localhost:6379")
	conf.SetDefault("redisPassword", "")
	conf.SetDefault("redisDB", 0)
	conf.SetDefault("accessTokenExpirationDelta", 15*time.Minute)
	conf.SetDefault("refreshTokenExpirationDelta", 30*24*time.Hour)
	conf.SetDefault("otpLength", 6)
	conf.SetDefault("otpExpirationDelta", 5*time.Minute)
	conf.SetDefault("messageRateLimit", 30)
	conf.SetDefault("messageRateWindow", time.Hour)
	conf.SetDefault("streamQueueSize", 64)
	conf.SetDefault("streamKeepaliveInterval", 15*time.Second)
	conf.SetDefault("sendgridAPIKey", "")
	conf.SetDefault("rollbarToken", "")

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Debug:            conf.GetBool("debug"),
		TestMode:         env == "TEST",
		AppName:          conf.GetString("appName"),
		Env:              env,
		Build:            conf.GetString("build"),
		SecretKey:        []byte(conf.GetString("secretKey")),
		FrontendBaseURL:  conf.GetString("frontendBaseURL"),
		DefaultFromEmail: conf.GetString("defaultFromEmail"),
		SendgridAPIKey:   conf.GetString("sendgridAPIKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:            conf.GetString("serverHost"),
			Addr:            conf.GetString("serverAddr"),
			DebugAddr:       conf.GetString("serverDebugAddr"),
			ShutdownTimeout: conf.GetDuration("serverShutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetString("dbPort"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			Name:          conf.GetString("dbName"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
		},
		Redis: RedisConfig{
			Addr:     conf.GetString("redisAddr"),
			Password: conf.GetString("redisPassword"),
			DB:       conf.GetInt("redisDB"),
		},
		Auth: AuthConfig{
			AccessTokenTTL:  conf.GetDuration("accessTokenExpirationDelta"),
			RefreshTokenTTL: conf.GetDuration("refreshTokenExpirationDelta"),
			OTPLength:       conf.GetInt("otpLength"),
			OTPTTL:          conf.GetDuration("otpExpirationDelta"),
		},
		Messaging: MessagingConfig{
			RateLimit:  conf.GetInt("messageRateLimit"),
			RateWindow: conf.GetDuration("messageRateWindow"),
		},
		Stream: StreamConfig{
			QueueSize:         conf.GetInt("streamQueueSize"),
			KeepaliveInterval: conf.GetDuration("streamKeepaliveInterval"),
		},
	}
}

// Getwd returns the module root so relative paths work from any package dir.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd: %v", err)
	}
	for dir := wd; dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
	}
	return wd
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s, build %s)", c.AppName, c.Env, c.Build)
}
