package db

import "github.com/stafflane/stafflane/internal/config"

// Config carries only the connection settings this package needs, so the
// dialect and pool logic stay decoupled from the rest of the environment
// configuration.
type Config struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

func fromAppConfig(appCfg config.Config) Config {
	return Config{
		Type:            appCfg.DBType,
		Host:            appCfg.DBHost,
		Port:            appCfg.DBPort,
		Name:            appCfg.DBName,
		User:            appCfg.DBUser,
		Password:        appCfg.DBPassword,
		SSLMode:         appCfg.DBSSLMode,
		MaxIdleConn:     appCfg.DBMaxIdleConn,
		MaxOpenConn:     appCfg.DBMaxOpenConn,
		ConnMaxLifetime: appCfg.DBConnMaxLifetime,
		ConnMaxIdleTime: appCfg.DBConnMaxIdleTime,
	}
}
