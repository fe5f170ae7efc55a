package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/stemsi/cefr-exam-engine/internal/config"
	"github.com/stemsi/cefr-exam-engine/internal/database"
	"github.com/stemsi/cefr-exam-engine/internal/logger"
	"github.com/stemsi/cefr-exam-engine/internal/model"
	"github.com/stemsi/cefr-exam-engine/internal/repository"
	"github.com/stemsi/cefr-exam-engine/internal/validator"
	"gopkg.in/yaml.v3"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	validator.Setup()

	seed, err := loadSeed(os.Args[1])
	if err != nil {
		log.Fatal().Err(err).Str("file", os.Args[1]).Msg("Invalid seed file")
	}

	dryRun := len(os.Args) > 2 && os.Args[2] == "--dry-run"
	if dryRun {
		for _, line := range summarize(seed) {
			fmt.Println(line)
		}
		log.Info().Msg("Dry run, nothing written")
		return
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	repo := repository.NewQuestionRepository(pool)

	total := 0
	for _, comp := range seed.Competencies {
		compID, err := repo.UpsertCompetency(ctx, comp.Code, comp.Name)
		if err != nil {
			log.Fatal().Err(err).Str("competency", comp.Code).Msg("Failed to upsert competency")
		}
		for _, qs := range comp.Questions {
			q := &model.Question{
				CompetencyID: compID,
				Level:        model.Level(qs.Level),
				Prompt:       qs.Prompt,
				Options:      qs.Options,
				CorrectIndex: qs.CorrectIndex,
			}
			if err := repo.UpsertQuestion(ctx, q); err != nil {
				log.Fatal().Err(err).
					Str("competency", comp.Code).
					Str("level", qs.Level).
					Msg("Failed to upsert question")
			}
			total++
		}
		log.Info().Str("competency", comp.Code).Int("questions", len(comp.Questions)).Msg("Competency seeded")
	}

	log.Info().Int("competencies", len(seed.Competencies)).Int("questions", total).Msg("Seeding complete")
}

// loadSeed decodes and validates a question bank file. Unknown keys are rejected.
func loadSeed(path string) (*model.QuestionBankSeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var seed model.QuestionBankSeed
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	for ci := range seed.Competencies {
		for qi := range seed.Competencies[ci].Questions {
			q := &seed.Competencies[ci].Questions[qi]
			q.OptionCount = len(q.Options)
		}
	}
	if fields := validator.Struct(&seed); fields != nil {
		return nil, fmt.Errorf("validate seed: %s", formatFields(fields))
	}

	if err := checkDuplicates(&seed); err != nil {
		return nil, err
	}
	return &seed, nil
}

// checkDuplicates rejects repeated competency codes and repeated levels within a competency.
func checkDuplicates(seed *model.QuestionBankSeed) error {
	codes := make(map[string]bool, len(seed.Competencies))
	for _, comp := range seed.Competencies {
		if codes[comp.Code] {
			return fmt.Errorf("duplicate competency code %q", comp.Code)
		}
		codes[comp.Code] = true

		levels := make(map[string]bool, len(comp.Questions))
		for _, q := range comp.Questions {
			if levels[q.Level] {
				return fmt.Errorf("competency %q has more than one %s question", comp.Code, q.Level)
			}
			levels[q.Level] = true
		}
	}
	return nil
}

// summarize lists, per competency, the levels it covers. A step needs both of its levels.
func summarize(seed *model.QuestionBankSeed) []string {
	lines := make([]string, 0, len(seed.Competencies))
	for _, comp := range seed.Competencies {
		levels := make([]string, 0, len(comp.Questions))
		for _, q := range comp.Questions {
			levels = append(levels, q.Level)
		}
		sort.Slice(levels, func(i, j int) bool {
			return model.Level(levels[i]).Rank() < model.Level(levels[j]).Rank()
		})
		lines = append(lines, fmt.Sprintf("%-16s %s", comp.Code, strings.Join(levels, " ")))
	}
	return lines
}

func formatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}
	return strings.Join(parts, "; ")
}

func printUsage() {
	fmt.Println("Usage: seed-questions <file.yaml> [--dry-run]")
	fmt.Println()
	fmt.Println("Upserts competencies by code and their active question per level.")
	fmt.Println("See seeds/question_bank.example.yaml for the file format.")
}
