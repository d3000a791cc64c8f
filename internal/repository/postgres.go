package repository

import "kksr-counter/pkg/database"

// NewPostgresRepositories wires every repository to one PostgreSQL database
func NewPostgresRepositories(db *database.PostgresDB) *Repositories {
	return &Repositories{
		Tx:       db,
		Throttle: NewThrottleRepository(db),
		Counter:  NewCounterRepository(db),
		Object:   NewObjectRepository(db),
		Settings: NewSettingsRepository(db),
	}
}
