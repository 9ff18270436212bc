// Command migrate manages the database schema.
//
//	migrate [-dir path] [-database url] up [n]
//	migrate down [n]
//	migrate force <version>
//	migrate version
//	migrate drop -yes
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/auswanderer-plattform/backend/internal/database"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	dir := flag.String("dir", "", "migrations directory (default: the migrations compiled into the binary)")
	databaseURL := flag.String("database", "", "database URL (default $DATABASE_URL)")
	confirm := flag.Bool("yes", false, "confirm destructive commands")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [flags] up [n] | down [n] | force <version> | version | drop")
		flag.PrintDefaults()
	}
	flag.Parse()

	_ = godotenv.Load()
	if *databaseURL == "" {
		*databaseURL = os.Getenv("DATABASE_URL")
	}
	if *databaseURL == "" {
		log.Fatal().Msg("DATABASE_URL or -database is required")
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := database.NewMigrator(*databaseURL, *dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open migrations")
	}
	defer m.Close()

	if err := run(m, args[0], args[1:], *confirm); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("Schema is up to date")
			return
		}
		log.Fatal().Err(err).Str("command", args[0]).Msg("Migration failed")
	}

	version, dirty, err := database.Version(m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migration version")
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
}

func run(m *migrate.Migrate, command string, args []string, confirmed bool) error {
	switch command {
	case "up":
		n, err := optionalCount(args)
		if err != nil {
			return err
		}
		if n > 0 {
			return m.Steps(n)
		}
		return m.Up()

	case "down":
		n, err := optionalCount(args)
		if err != nil {
			return err
		}
		if n > 0 {
			return m.Steps(-n)
		}
		if !confirmed {
			return errors.New("down without a count reverts every migration; pass -yes")
		}
		return m.Down()

	case "force":
		if len(args) != 1 {
			return errors.New("force needs a version")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return m.Force(v)

	case "version":
		return nil

	case "drop":
		if !confirmed {
			return errors.New("drop deletes every table; pass -yes")
		}
		return m.Drop()

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func optionalCount(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid step count %q", args[0])
	}
	return n, nil
}
