package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-player/internal/config"
	"github.com/stemsi/exstem-player/internal/database"
	"github.com/stemsi/exstem-player/internal/logger"
	"github.com/stemsi/exstem-player/internal/model"
	"github.com/stemsi/exstem-player/internal/repository"
	"github.com/stemsi/exstem-player/internal/service"
)

const (
	demoAuthorID = 1
	demoParentID = 1001
	demoAdminID  = 9000
)

var demoQuestions = []struct {
	text    string
	choices []string
	correct string
}{
	{`Hasil dari $2^5$ adalah ...`, []string{"16", "32", "64", "25"}, "B"},
	{"Ibu kota provinsi Bali adalah ...", []string{"Singaraja", "Gianyar", "Denpasar", "Tabanan"}, "C"},
	{"Planet terdekat dari Matahari adalah ...", []string{"Merkurius", "Venus", "Bumi", "Mars"}, "A"},
	{`Nilai $x$ yang memenuhi $3x + 6 = 0$ adalah ...`, []string{"2", "-3", "3", "-2"}, "D"},
	{"Protokol yang digunakan untuk mengirim email adalah ...", []string{"HTTP", "FTP", "SMTP", "DNS"}, "C"},
	{"Satuan hambatan listrik adalah ...", []string{"Ohm", "Volt", "Ampere", "Watt"}, "A"},
	{"Sinonim kata 'cerdas' adalah ...", []string{"Malas", "Pintar", "Lambat", "Ragu"}, "B"},
	{"Port default untuk HTTPS adalah ...", []string{"80", "21", "22", "443"}, "D"},
}

func main() {
	students := flag.Int("students", 50, "Number of students granted access (ids 1..n)")
	duration := flag.Int("duration", 1800, "Test duration in seconds")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed tokens")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	test := model.Test{
		Title:           "Ujian Demo Lintas Mapel",
		AuthorID:        demoAuthorID,
		DurationSeconds: *duration,
		Status:          model.TestStatusPublished,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO tests (title, author_id, duration_seconds, status)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		test.Title, test.AuthorID, test.DurationSeconds, test.Status,
	).Scan(&test.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create test")
	}

	batch := &pgx.Batch{}
	for i, q := range demoQuestions {
		choices := make([]model.Choice, len(q.choices))
		for j, text := range q.choices {
			choices[j] = model.Choice{ID: string(rune('A' + j)), Text: text}
		}
		batch.Queue(
			`INSERT INTO questions (test_id, text, choices, correct_choice_id, order_num)
			 VALUES ($1, $2, $3, $4, $5)`,
			test.ID, q.text, choices, q.correct, i+1,
		)
	}
	for id := 1; id <= *students; id++ {
		batch.Queue(`INSERT INTO test_access (test_id, student_id) VALUES ($1, $2)`, test.ID, id)
	}
	batch.Queue(
		`INSERT INTO parent_children (parent_id, student_id) VALUES ($1, 1) ON CONFLICT DO NOTHING`,
		demoParentID,
	)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed questions and access")
	}
	if err := tx.Commit(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to commit seed")
	}

	papers := service.NewPaperService(
		repository.NewTestRepository(pool),
		repository.NewQuestionRepository(pool),
		rdb,
		log,
	)
	if _, _, err := papers.WarmTestCache(ctx, &test); err != nil {
		log.Fatal().Err(err).Msg("Failed to warm cache")
	}

	auth := service.NewAuthService(cfg.JWTSecret)
	tokens := []struct {
		label string
		id    int
		role  service.Role
	}{
		{"student 1", 1, service.RoleStudent},
		{"parent of student 1", demoParentID, service.RoleParent},
		{"teacher (author)", demoAuthorID, service.RoleTeacher},
		{"admin", demoAdminID, service.RoleAdmin},
	}

	fmt.Printf("Seeded test %s with %d questions for %d students\n\n", test.ID, len(demoQuestions), *students)
	for _, tk := range tokens {
		token, err := auth.IssueToken(tk.id, tk.role, *tokenTTL)
		if err != nil {
			log.Fatal().Err(err).Str("role", string(tk.role)).Msg("Failed to issue token")
		}
		fmt.Printf("%-20s %s\n", tk.label+":", token)
	}
	fmt.Printf("\nPlay: ws://localhost:%s/ws/v1/student/tests/%s/play?token=<student token>\n", cfg.ServerPort, test.ID)
}
