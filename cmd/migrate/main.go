package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/config"
	"github.com/stemsi/cefr-exam-engine/internal/logger"
)

// migrator is the subset of *migrate.Migrate the commands drive.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(v int) error
}

// command is a parsed CLI invocation. Arg carries the count for steps and the
// version for force.
type command struct {
	Name string
	Arg  int
}

var errUsage = errors.New("usage: migrate [-path dir] up|down|steps <n>|version|force <version>")

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	path := flag.String("path", cfg.MigrationsPath, "Directory with migration files (MIGRATIONS_PATH)")
	flag.Parse()

	cmd, err := parseCommand(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.PrintDefaults()
		os.Exit(2)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+*path, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", *path).Msg("Failed to initialize migrations")
	}
	defer m.Close()

	if err := run(m, cmd, log); err != nil {
		log.Error().Err(err).Str("command", cmd.Name).Msg("Migration failed")
		m.Close()
		os.Exit(1)
	}
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errUsage
	}
	cmd := command{Name: args[0]}
	switch cmd.Name {
	case "up", "down", "version":
		if len(args) != 1 {
			return command{}, errUsage
		}
	case "steps", "force":
		if len(args) != 2 {
			return command{}, fmt.Errorf("%s requires one integer argument", cmd.Name)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return command{}, fmt.Errorf("invalid %s argument %q", cmd.Name, args[1])
		}
		if cmd.Name == "steps" && n == 0 {
			return command{}, errors.New("steps must be non-zero")
		}
		if cmd.Name == "force" && n < 0 && n != -1 {
			return command{}, fmt.Errorf("invalid force version %d", n)
		}
		cmd.Arg = n
	default:
		return command{}, errUsage
	}
	return cmd, nil
}

// run applies cmd. An already current schema is not an error.
func run(m migrator, cmd command, log zerolog.Logger) error {
	var err error
	switch cmd.Name {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		err = m.Steps(cmd.Arg)
	case "force":
		err = m.Force(cmd.Arg)
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			log.Info().Msg("No migrations applied")
			return nil
		}
		if verr != nil {
			return verr
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Schema version")
		return nil
	default:
		return errUsage
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Str("command", cmd.Name).Msg("Schema already up to date")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().Str("command", cmd.Name).Int("arg", cmd.Arg).Msg("Migration applied")
	return nil
}
