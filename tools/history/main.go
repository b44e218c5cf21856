package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Prints the archived live probability trajectory of one fixture.
func main() {
	fixture := flag.Int64("fixture", 0, "Fixture id")
	limit := flag.Int("limit", 200, "Maximum rows")
	flag.Parse()

	if *fixture == 0 {
		log.Fatal("-fixture is required")
	}

	chURL := os.Getenv("CLICKHOUSE_URL")
	if chURL == "" {
		chURL = "clickhouse://localhost:9000/default"
	}

	opts, err := clickhouse.ParseDSN(chURL)
	if err != nil {
		log.Fatalf("Failed to parse DSN: %v", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := conn.Query(ctx, `
		SELECT created_at, model_version, status, elapsed, home_goals, away_goals,
		       prob_home_win, prob_draw, prob_away_win
		FROM prediction_history
		WHERE fixture_id = ?
		ORDER BY created_at
		LIMIT ?
	`, *fixture, *limit)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	fmt.Printf("%-24s %-10s %-4s %5s %5s  %6s %6s %6s\n", "created_at", "model", "st", "min", "score", "home", "draw", "away")
	n := 0
	for rows.Next() {
		var (
			createdAt                    time.Time
			version, status              string
			elapsed, homeG, awayG        *int32
			probHome, probDraw, probAway float64
		)
		if err := rows.Scan(&createdAt, &version, &status, &elapsed, &homeG, &awayG, &probHome, &probDraw, &probAway); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		fmt.Printf("%-24s %-10s %-4s %5s %5s  %6.3f %6.3f %6.3f\n",
			createdAt.Format(time.RFC3339), version, status, num(elapsed), score(homeG, awayG), probHome, probDraw, probAway)
		n++
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Rows failed: %v", err)
	}
	fmt.Printf("%d rows\n", n)
}

func num(v *int32) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func score(h, a *int32) string {
	if h == nil || a == nil {
		return "-"
	}
	return fmt.Sprintf("%d-%d", *h, *a)
}
