package config

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server   Server
	Database Database
	Redis    Redis
	Session  Session
}

type Server struct {
	Port string
}

type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Session struct {
	// DefaultExpiryDays applies to sessions created by the lifecycle service.
	DefaultExpiryDays int
	// RecoveryCacheHours is the TTL for cached recovery summaries.
	RecoveryCacheHours int
}

func NewConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	viper.SetDefault("SESSION_EXPIRY_DAYS", 7)
	viper.SetDefault("RECOVERY_CACHE_HOURS", 24)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")

	if err := viper.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("Error reading config file")
	}

	var config Config

	config.Server.Port = viper.GetString("SERVER_PORT")
	config.Database.Host = viper.GetString("DATABASE_HOST")
	config.Database.Port = viper.GetString("DATABASE_PORT")
	config.Database.User = viper.GetString("DATABASE_USER")
	config.Database.Password = viper.GetString("DATABASE_PASSWORD")
	config.Database.Name = viper.GetString("DATABASE_NAME")

	config.Redis.Addr = viper.GetString("REDIS_ADDR")
	config.Redis.Password = viper.GetString("REDIS_PASSWORD")
	config.Redis.DB = viper.GetInt("REDIS_DB")

	config.Session.DefaultExpiryDays = viper.GetInt("SESSION_EXPIRY_DAYS")
	config.Session.RecoveryCacheHours = viper.GetInt("RECOVERY_CACHE_HOURS")

	log.Info().Str("port", config.Server.Port).Str("db_host", config.Database.Host).Msg("Config loaded")
	return &config, nil
}
