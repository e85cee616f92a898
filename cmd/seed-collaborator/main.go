// seed-collaborator registers a collaborator, or re-activates an existing one, so it can
// open count groups. Pass --system to print the id to use for SYSTEM_AUDIT_USER_ID and
// --token to mint a bearer token for local testing.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	go run ./cmd/seed-collaborator --name="Stock Auditor" --code=SYS --system
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/stockcount_backend/config"
	"bitbucket.org/mmdatafocus/stockcount_backend/models"
	"bitbucket.org/mmdatafocus/stockcount_backend/utils"
)

func main() {
	name := flag.String("name", "", "Required: collaborator name (unique)")
	code := flag.String("code", "", "Optional: badge or employee code")
	system := flag.Bool("system", false, "Print the SYSTEM_AUDIT_USER_ID setting for this collaborator")
	token := flag.Bool("token", false, "Print a bearer token for this collaborator (dev only)")
	flag.Parse()

	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "--name is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if !config.SkipMigrations() {
		models.MigrateTable()
	}

	ctx := context.Background()
	collaborator, err := models.CreateCollaborator(ctx, &models.NewCollaborator{Name: *name, Code: *code})
	switch {
	case err == nil:
		fmt.Printf("Created collaborator: id=%d name=%q\n", collaborator.ID, collaborator.Name)
	case utils.IsConflictError(err):
		var existing models.Collaborator
		if err := db.WithContext(ctx).Where("name = ?", strings.TrimSpace(*name)).Take(&existing).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to lookup collaborator: %v\n", err)
			os.Exit(1)
		}
		collaborator, err = models.ToggleActiveCollaborator(ctx, existing.ID, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to activate collaborator: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Collaborator already exists; active: id=%d name=%q\n", collaborator.ID, collaborator.Name)
	default:
		fmt.Fprintf(os.Stderr, "failed to create collaborator: %v\n", err)
		os.Exit(1)
	}

	if *system {
		fmt.Printf("SYSTEM_AUDIT_USER_ID=%d\n", collaborator.ID)
	}
	if *token {
		t, err := utils.JwtGenerate(collaborator.ID, collaborator.Name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Authorization: Bearer %s\n", t)
	}
}
