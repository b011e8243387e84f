// Package migrations embeds SQL migration files into the binary so the
// service can migrate its schema without the files present on disk.
package migrations

import (
	"embed"

	"github.com/inkboard/inkboard-auth/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
}
