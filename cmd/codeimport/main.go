// Command codeimport loads pairing codes into the database, one per line.
//
//	codeimport -file codes.txt
//	cat codes.txt | codeimport
package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ppwm/matcher-server-go/internal/config"
	"github.com/ppwm/matcher-server-go/internal/database"
	"github.com/ppwm/matcher-server-go/internal/repository"
	"github.com/ppwm/matcher-server-go/internal/service"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	file := flag.String("file", "", "path to a newline-separated code list (default: stdin)")
	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "postgres connection string")
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal().Msg("DATABASE_URL or -database-url is required")
	}

	input, err := readInput(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("failed to read codes")
	}

	db, err := database.Connect(*databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.ServerRequestTimeout)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	registry := service.NewCodeRegistry(repository.NewCodeRepository(db.DB))
	codes, err := registry.Import(ctx, service.ImportText(input))
	if err != nil {
		log.Fatal().Err(err).Msg("import failed")
	}

	log.Info().Int("imported", len(codes)).Msg("done")
}

func readInput(path string) (string, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
