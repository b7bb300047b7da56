package store

import (
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
)

type Store struct {
	db *gorm.DB
}

func New(driver, dsn string) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto migrate
	if err := db.AutoMigrate(
		&models.Integration{},
		&models.SyncLog{},
		&models.IntegrationEvent{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Health reports whether the underlying database connection is usable.
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB exposes the underlying gorm handle for advanced queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}
