package config

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"tasker/models"
)

type foreignKey struct {
	name     string
	table    string
	column   string
	refTable string
	onDelete string
}

// Constraints gorm cannot infer because the models carry no relation fields
// for them (users <-> teams reference each other).
var foreignKeys = []foreignKey{
	{"fk_users_active_team", "users", "active_team_id", "teams", "SET NULL"},
	{"fk_teams_created_by", "teams", "created_by", "users", "RESTRICT"},
	{"fk_team_members_team", "team_members", "team_id", "teams", "CASCADE"},
	{"fk_team_members_user", "team_members", "user_id", "users", "CASCADE"},
	{"fk_tasks_owner_user", "tasks", "owner_user_id", "users", "RESTRICT"},
	{"fk_tasks_created_by", "tasks", "created_by", "users", "RESTRICT"},
	{"fk_tasks_team", "tasks", "team_id", "teams", "SET NULL"},
}

// MigrateDB creates or updates the schema for every model.
func MigrateDB(db *gorm.DB) error {
	log.Println("Starting database migration...")

	if err := db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.TeamMember{},
		&models.Task{},
	); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	if db.Dialector.Name() == "postgres" {
		for _, fk := range foreignKeys {
			if err := ensureForeignKey(db, fk); err != nil {
				return err
			}
		}
	}

	log.Println("Database migration completed")
	return nil
}

func ensureForeignKey(db *gorm.DB, fk foreignKey) error {
	stmt := fmt.Sprintf(`
            DO $$
            BEGIN
                IF NOT EXISTS (
                    SELECT 1 FROM pg_constraint
                    WHERE conname = '%s'
                ) THEN
                    EXECUTE 'ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(id) ON DELETE %s';
                END IF;
            END $$;
        `, fk.name, fk.table, fk.name, fk.column, fk.refTable, fk.onDelete)

	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to add constraint %s: %w", fk.name, err)
	}
	return nil
}
