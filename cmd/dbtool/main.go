package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/fleetrent/backend/internal/config"
	"github.com/PortNumber53/fleetrent/backend/internal/logging"
	"github.com/PortNumber53/fleetrent/backend/internal/migrations"
	"github.com/PortNumber53/fleetrent/backend/internal/store"
)

const usage = "usage: dbtool [up|fix|force <version>|status|cleanup [days]]"

func main() {
	_ = config.LoadDotEnv("../.env", ".env")
	logging.Setup(os.Getenv("LOG_LEVEL"), "console", os.Stderr)

	dsn, err := config.LoadDatabaseURL()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	cmd, args := "up", []string(nil)
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	if err := run(ctx, db, cmd, args); err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("dbtool failed")
	}
}

func run(ctx context.Context, db *sql.DB, cmd string, args []string) error {
	switch cmd {
	case "up":
		if err := migrations.Up(db); err != nil {
			return err
		}
		log.Info().Msg("migrations applied")

	case "fix":
		if err := migrations.FixDirtyDatabase(db); err != nil {
			return err
		}
		log.Info().Msg("dirty database fixed")

	case "force":
		if len(args) < 1 {
			return fmt.Errorf("%s", usage)
		}
		v, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[0])
		}
		if err := migrations.ForceVersion(db, uint(v)); err != nil {
			return err
		}
		log.Info().Uint64("version", v).Msg("database version forced")

	case "status":
		st, err := migrations.Status(db)
		if err != nil {
			return err
		}
		if st.Fresh {
			log.Info().Msg("no migrations applied")
			return nil
		}
		log.Info().Uint("version", st.Version).Bool("dirty", st.Dirty).Msg("migration status")

	case "cleanup":
		days := 30
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid retention %q", args[0])
			}
			days = n
		}
		olderThan := time.Duration(days) * 24 * time.Hour

		st, err := store.New(db)
		if err != nil {
			return err
		}
		jobs, err := store.NewJobStore(db)
		if err != nil {
			return err
		}
		events, err := st.CleanupWebhookEvents(ctx, olderThan)
		if err != nil {
			return err
		}
		removedJobs, err := jobs.CleanupOldJobs(ctx, olderThan)
		if err != nil {
			return err
		}
		log.Info().Int64("webhook_events", events).Int64("jobs", removedJobs).Int("days", days).Msg("cleanup finished")

	default:
		return fmt.Errorf("unknown command %q; %s", cmd, usage)
	}
	return nil
}
