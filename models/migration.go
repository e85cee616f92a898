package models

import (
	"log"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Collaborator{},
		&CountRound{}, &CountItem{}, &CountLogEntry{},
		&AuditRecord{}, &AuditOutboxRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
