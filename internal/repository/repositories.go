package repository

import "github.com/jmoiron/sqlx"

// Repositories groups the stores the services depend on, whichever backend provides them.
type Repositories struct {
	Codes         CodeRepository
	Users         UserRepository
	Notifications PairNotificationRepository
}

func NewPostgresRepositories(db *sqlx.DB) Repositories {
	return Repositories{
		Codes:         NewCodeRepository(db),
		Users:         NewUserRepository(db),
		Notifications: NewPairNotificationRepository(db),
	}
}

func (s *MemoryStore) Repositories() Repositories {
	return Repositories{
		Codes:         s.Codes(),
		Users:         s.Users(),
		Notifications: s.Notifications(),
	}
}
