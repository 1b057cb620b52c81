package database

import (
	"github.com/jmoiron/sqlx"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/repositories"
	"github.com/mailwatch-ops/mailwatch-backend-go/internal/database/sqlite"
	"github.com/sirupsen/logrus"
)

// Repositories holds all repository instances
type Repositories struct {
	Rules     repositories.RuleRepository
	Incidents repositories.IncidentRepository
	Facts     repositories.FactRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *sqlx.DB, log *logrus.Logger) *Repositories {
	return &Repositories{
		Rules:     sqlite.NewRuleRepository(db, log),
		Incidents: sqlite.NewIncidentRepository(db, log),
		Facts:     sqlite.NewFactRepository(db, log),
	}
}
