package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/matchcast/predictor/internal/broker"
	"github.com/matchcast/predictor/internal/models"
)

var (
	redisURL   = flag.String("redis", "redis://localhost:6379/0", "Redis URL")
	partitions = flag.Int("partitions", 4, "Number of stream partitions")
	fixtureID  = flag.Int64("fixture", 1035001, "Fixture id of the sample event")
	mode       = flag.String("mode", "live", "Event to publish: live, refresh or prematch")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	opts, err := redis.ParseURL(*redisURL)
	if err != nil {
		log.Fatalf("Invalid redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	producer := broker.NewProducer(rdb, *partitions, 0)

	event, topic, err := sampleEvent(*mode, *fixtureID)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := producer.Send(ctx, topic, *fixtureID, event)
	if err != nil {
		log.Fatalf("Failed to publish: %v", err)
	}

	stream := broker.StreamName(topic, broker.Partition(*fixtureID, *partitions))
	fmt.Printf("Published %s event for fixture %d to %s (%s)\n", *mode, *fixtureID, stream, id)
}

func sampleEvent(mode string, fixtureID int64) (models.InboundEvent, string, error) {
	i64 := func(v int64) *int64 { return &v }
	num := func(v int) *int { return &v }
	f := func(v float64) *float64 { return &v }

	e := models.InboundEvent{
		FixtureID:  &fixtureID,
		League:     "Premier League",
		Season:     num(2025),
		Date:       time.Now().UTC().Format(time.RFC3339),
		HomeTeam:   "Arsenal",
		AwayTeam:   "Chelsea",
		HomeTeamID: i64(42),
		AwayTeamID: i64(49),
	}

	switch mode {
	case "live":
		e.Mode = string(models.ModeLive)
		e.HomeTeamID, e.AwayTeamID = nil, nil
		e.StatusShort = "2H"
		e.Elapsed = num(67)
		e.HomeGoals, e.AwayGoals = num(1), num(0)
		e.HomeShotsTotal, e.AwayShotsTotal = f(12), f(7)
		e.HomeShotsInbox, e.AwayShotsInbox = f(8), f(3)
		e.HomePossession, e.AwayPossession = f(58), f(42)
		e.HomePassAccuracy, e.AwayPassAccuracy = f(86), f(79)
		e.HomeCorners, e.AwayCorners = f(6), f(2)
		e.HomeFouls, e.AwayFouls = f(9), f(13)
		return e, broker.TopicLiveStats, nil
	case "refresh":
		e.PredictMode = string(models.ModeRefresh)
		e.StatusShort = "NS"
		return e, broker.TopicRefresh, nil
	case "prematch":
		e.PredictMode = string(models.ModePrematch)
		return e, broker.TopicPrematch, nil
	}
	return e, "", fmt.Errorf("unknown mode %q", mode)
}
