package database

import (
	"cifuzz/config"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewDBConnection connects to the crash-record database when DATABASE_URL is
// set. The database is an optional sink; connection problems downgrade to a
// warning and the run carries on with file artifacts only.
func NewDBConnection(appConfig *config.AppConfig, logger *zap.Logger) *gorm.DB {
	connectionString := appConfig.DatabaseURL
	if connectionString == "" {
		return nil
	}
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{})
	if err != nil {
		logger.Warn("failed to connect crash database, continuing without it", zap.Error(err))
		return nil
	}
	logger.Debug("connected to crash database")
	return db
}
