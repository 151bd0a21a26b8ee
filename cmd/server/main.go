/*
main.go - Application entry point

PURPOSE:
  Starts the goal attainment dashboard: either the HTTP API (serve, the
  default) or a one-shot terminal report (report).

STARTUP SEQUENCE:
  1. Load .env, then environment (config.LoadFromEnv)
  2. Apply command-line flags
  3. Resolve the sheet layout (preset or TOML file)
  4. Open the SQLite store and, if configured, Redis
  5. Wire loader -> snapshot fetcher -> table cache -> metrics engine
  6. Run the command

ENVIRONMENT:
  APP_ENV, PORT, SOURCE_URL, DB_PATH, REDIS_ADDR, REDIS_PASSWORD, REDIS_DB,
  CACHE_TTL, REFRESH_INTERVAL, LAYOUT_FILE, CSV_DELIMITER, CORS_ORIGINS

EXAMPLES:
  # Serve a published Google Sheet
  ./server --source "https://docs.google.com/.../export?format=csv"

  # Print a report for a local workbook with the Portuguese layout
  ./server report --source ./metas.xlsx --layout portuguese

SEE ALSO:
  - root.go: Flags and shared wiring
  - serve.go: HTTP server with graceful shutdown
  - report.go: Terminal report
*/
package main

import (
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	Execute()
}
