package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env      string
		Debug    bool
		TestMode bool
		AppName  string
		Build    string
		WorkDir  string

		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string

		Server       ServerConfig
		SessionStore SessionStoreConfig
		Directory    DirectoryConfig
		Database     DatabaseConfig
		Portal       PortalConfig
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	// SessionStoreConfig configures the external auth service client.
	// Provider "inmem" swaps in the in-process stand-in for DEV|TEST.
	SessionStoreConfig struct {
		Provider      string
		URL           string
		AnonKey       string
		ServiceKey    string
		RefreshMargin time.Duration
	}

	// DirectoryConfig selects the role-directory backend: "rest" hits the
	// hosted row store's REST API, "postgres" talks to the database
	// directly, "inmem" is for DEV|TEST.
	DirectoryConfig struct {
		Backend string
		RestURL string
		RestKey string
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}

	// PortalConfig bounds the settle/propagation polls in the login and
	// signup flows.
	PortalConfig struct {
		SettleTimeout   time.Duration
		SettleInterval  time.Duration
		ProfileTimeout  time.Duration
		ProfileInterval time.Duration
	}
)

func (c DatabaseConfig) Address() string {
	return c.Host + ":" + c.Port
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "CampusDesk")
	conf.SetDefault("build", "dev")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromName", "CampusDesk")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("sendgridApiKey", "")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("serverHost", "0.0.0.0:8000")
	conf.SetDefault("serverDebugHost", "0.0.0.0:4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)

	conf.SetDefault("sessionStoreProvider", "inmem")
	conf.SetDefault("sessionStoreURL", "http://localhost:9999")
	conf.SetDefault("sessionStoreAnonKey", "")
	conf.SetDefault("sessionStoreServiceKey", "")
	conf.SetDefault("sessionStoreRefreshMargin", 30*time.Second)

	conf.SetDefault("directoryBackend", "inmem")
	conf.SetDefault("directoryRestURL", "http://localhost:3001")
	conf.SetDefault("directoryRestKey", "")

	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbName", "campusdesk")
	conf.SetDefault("dbUser", "")
	conf.SetDefault("dbPassword", "")
	conf.SetDefault("dbAdminUser", "")
	conf.SetDefault("dbAdminPassword", "")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", "5432")
	conf.SetDefault("dbDisableTLS", true)

	conf.SetDefault("portalSettleTimeout", 3*time.Second)
	conf.SetDefault("portalSettleInterval", 100*time.Millisecond)
	conf.SetDefault("portalProfileTimeout", 5*time.Second)
	conf.SetDefault("portalProfileInterval", 250*time.Millisecond)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	var testMode bool
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
	}
	conf.SetEnvPrefix(env)

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Env:      env,
		Debug:    conf.GetBool("debug"),
		TestMode: testMode,
		AppName:  conf.GetString("appName"),
		Build:    conf.GetString("build"),
		WorkDir:  wd,

		FrontendBaseURL: conf.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{
			Name:    conf.GetString("defaultFromName"),
			Address: conf.GetString("defaultFromEmail"),
		},
		SendgridApiKey: conf.GetString("sendgridApiKey"),
		RollbarToken:   conf.GetString("rollbarToken"),

		Server: ServerConfig{
			Host:            conf.GetString("serverHost"),
			DebugHost:       conf.GetString("serverDebugHost"),
			ShutdownTimeout: conf.GetDuration("serverShutdownTimeout"),
		},
		SessionStore: SessionStoreConfig{
			Provider:      conf.GetString("sessionStoreProvider"),
			URL:           conf.GetString("sessionStoreURL"),
			AnonKey:       conf.GetString("sessionStoreAnonKey"),
			ServiceKey:    conf.GetString("sessionStoreServiceKey"),
			RefreshMargin: conf.GetDuration("sessionStoreRefreshMargin"),
		},
		Directory: DirectoryConfig{
			Backend: conf.GetString("directoryBackend"),
			RestURL: conf.GetString("directoryRestURL"),
			RestKey: conf.GetString("directoryRestKey"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetString("dbPort"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
		},
		Portal: PortalConfig{
			SettleTimeout:   conf.GetDuration("portalSettleTimeout"),
			SettleInterval:  conf.GetDuration("portalSettleInterval"),
			ProfileTimeout:  conf.GetDuration("portalProfileTimeout"),
			ProfileInterval: conf.GetDuration("portalProfileInterval"),
		},
	}
}

// Getwd returns the current working directory.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd: %v", err)
	}
	return wd
}
