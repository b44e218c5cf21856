package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matchcast/predictor/internal/broker"
	"github.com/matchcast/predictor/internal/models"
	"github.com/matchcast/predictor/internal/upstream"
)

type sent struct {
	Topic     string
	FixtureID int64
	Event     models.InboundEvent
}

type mockSender struct {
	mu   sync.Mutex
	Sent []sent
	Err  error
}

func (m *mockSender) Send(ctx context.Context, topic string, fixtureID int64, v any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.Sent = append(m.Sent, sent{Topic: topic, FixtureID: fixtureID, Event: v.(models.InboundEvent)})
	return "1-0", nil
}

type mockLiveSource struct {
	Items      []upstream.FixtureItem
	Stats      map[int64]models.MatchStats
	StatsErr   map[int64]error
	StatsCalls []int64
}

func (m *mockLiveSource) LiveFixtures(ctx context.Context) ([]upstream.FixtureItem, error) {
	return m.Items, nil
}

func (m *mockLiveSource) MatchStats(ctx context.Context, fixtureID int64, homeTeam, awayTeam string) (models.MatchStats, error) {
	m.StatsCalls = append(m.StatsCalls, fixtureID)
	if err := m.StatsErr[fixtureID]; err != nil {
		return models.MatchStats{}, err
	}
	return m.Stats[fixtureID], nil
}

func items(t *testing.T, raw string) []upstream.FixtureItem {
	t.Helper()
	var out []upstream.FixtureItem
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("bad fixture json: %v", err)
	}
	return out
}

const liveFeed = `[
	{"fixture": {"id": 1, "status": {"short": "1H", "elapsed": 23}}, "league": {"name": "Premier League", "season": 2025},
	 "teams": {"home": {"id": 42, "name": "Arsenal"}, "away": {"id": 49, "name": "Chelsea"}}, "goals": {"home": 0, "away": 0}},
	{"fixture": {"id": 2, "status": {"short": "HT", "elapsed": null}}, "league": {"name": "La Liga", "season": 2025},
	 "teams": {"home": {"id": 529, "name": "Barcelona"}, "away": {"id": 541, "name": "Real Madrid"}}, "goals": {"home": 1, "away": 1}},
	{"fixture": {"id": 3, "status": {"short": "FT", "elapsed": 90}}, "league": {"name": "Serie A", "season": 2025},
	 "teams": {"home": {"name": "Inter"}, "away": {"name": "Milan"}}, "goals": {"home": 2, "away": 1}},
	{"fixture": {"id": 4, "status": {"short": "NS"}}, "league": {"name": "Ligue 1", "season": 2025},
	 "teams": {"home": {"name": "PSG"}, "away": {"name": "Lyon"}}, "goals": {}}
]`

func f(v float64) *float64 { return &v }

func TestLivePoller_PublishesChangedInPlaySnapshots(t *testing.T) {
	source := &mockLiveSource{
		Items: items(t, liveFeed),
		Stats: map[int64]models.MatchStats{
			1: {HomeShotsTotal: f(4), AwayShotsTotal: f(1)},
			2: {},
			3: {HomeShotsTotal: f(12)},
		},
	}
	sender := &mockSender{}
	p := NewLivePoller(LiveConfig{Source: source, Sender: sender})

	n, err := p.Poll(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Poll() = %d, %v", n, err)
	}

	// Finished and not-started fixtures are never fetched.
	if len(source.StatsCalls) != 2 {
		t.Errorf("stats fetched for %v", source.StatsCalls)
	}

	s := sender.Sent[0]
	if s.Topic != broker.TopicLiveStats || s.FixtureID != 1 {
		t.Errorf("sent = %+v", s)
	}
	e := s.Event
	if e.ResolveMode() != models.ModeLive || *e.Elapsed != 23 || *e.HomeShotsTotal != 4 || e.HomeTeamID != nil {
		t.Errorf("event = %+v", e)
	}

	// Same data again: suppressed.
	if n, _ := p.Poll(context.Background()); n != 0 {
		t.Errorf("unchanged poll published %d", n)
	}

	// One changed field: published again.
	source.Stats[1] = models.MatchStats{HomeShotsTotal: f(5), AwayShotsTotal: f(1)}
	if n, _ := p.Poll(context.Background()); n != 1 {
		t.Errorf("changed poll published %d", n)
	}
}

func TestLivePoller_Eviction(t *testing.T) {
	source := &mockLiveSource{
		Items: items(t, liveFeed)[:1],
		Stats: map[int64]models.MatchStats{1: {HomeCorners: f(2)}},
	}
	p := NewLivePoller(LiveConfig{Source: source, Sender: &mockSender{}})

	p.Poll(context.Background())
	if p.dedup.Len() != 1 {
		t.Fatalf("tracked = %d", p.dedup.Len())
	}

	source.Items = nil
	p.Poll(context.Background())
	if p.dedup.Len() != 0 {
		t.Errorf("fixture that left the feed still tracked")
	}
}

func TestLivePoller_SendFailureRetriesNextPoll(t *testing.T) {
	source := &mockLiveSource{
		Items: items(t, liveFeed)[:1],
		Stats: map[int64]models.MatchStats{1: {HomeFouls: f(3)}},
	}
	sender := &mockSender{Err: errors.New("READONLY")}
	p := NewLivePoller(LiveConfig{Source: source, Sender: sender})

	if n, _ := p.Poll(context.Background()); n != 0 {
		t.Fatalf("published %d with failing sender", n)
	}

	sender.Err = nil
	if n, _ := p.Poll(context.Background()); n != 1 {
		t.Errorf("retry published %d, want 1", n)
	}
}

func TestLivePoller_StatsErrorSkipsFixture(t *testing.T) {
	source := &mockLiveSource{
		Items:    items(t, liveFeed)[:2],
		Stats:    map[int64]models.MatchStats{2: {HomePossession: f(60)}},
		StatsErr: map[int64]error{1: errors.New("timeout")},
	}
	sender := &mockSender{}
	p := NewLivePoller(LiveConfig{Source: source, Sender: sender})

	n, err := p.Poll(context.Background())
	if err != nil || n != 1 || sender.Sent[0].FixtureID != 2 {
		t.Errorf("Poll() = %d, %v, sent %+v", n, err, sender.Sent)
	}
	if *sender.Sent[0].Event.Elapsed != 0 {
		t.Errorf("null elapsed should be sent as 0")
	}
}

type mockSeasonSource struct {
	ByLeague map[int64][]upstream.FixtureItem
	Err      map[int64]error
}

func (m *mockSeasonSource) FixturesBySeason(ctx context.Context, leagueID int64, season int) ([]upstream.FixtureItem, error) {
	if err := m.Err[leagueID]; err != nil {
		return nil, err
	}
	return m.ByLeague[leagueID], nil
}

func TestRefreshPoller(t *testing.T) {
	all := items(t, liveFeed)
	source := &mockSeasonSource{
		ByLeague: map[int64][]upstream.FixtureItem{39: all[:2], 135: all[2:]},
		Err:      map[int64]error{140: errors.New("quota exceeded")},
	}
	sender := &mockSender{}
	p := NewRefreshPoller(RefreshConfig{Source: source, Sender: sender, LeagueIDs: []int64{39, 140, 135}, Season: 2025})

	n, err := p.Poll(context.Background())
	if n != 4 {
		t.Errorf("published %d, want 4", n)
	}
	if err == nil {
		t.Error("failed league should be reported")
	}

	for _, s := range sender.Sent {
		if s.Topic != broker.TopicRefresh || s.Event.ResolveMode() != models.ModeRefresh {
			t.Errorf("sent = %+v", s)
		}
	}
	if id := sender.Sent[0].Event.HomeTeamID; id == nil || *id != 42 {
		t.Errorf("refresh events carry team ids, got %v", id)
	}
}

type mockLister struct {
	Rows  []models.FixtureRef
	Limit int
	Stale time.Duration
}

func (m *mockLister) FixturesNeedingH2H(ctx context.Context, limit int, stale time.Duration) ([]models.FixtureRef, error) {
	m.Limit, m.Stale = limit, stale
	return m.Rows, nil
}

func TestH2HPoller(t *testing.T) {
	home, away := int64(85), int64(80)
	season := 2025
	kickoff := time.Date(2025, 10, 4, 19, 0, 0, 0, time.UTC)
	lister := &mockLister{Rows: []models.FixtureRef{
		{FixtureID: 10, League: "Ligue 1", Season: &season, Date: &kickoff, HomeTeam: "PSG", AwayTeam: "Lyon", HomeTeamID: &home, AwayTeamID: &away},
		{FixtureID: 11, League: "Ligue 1"},
	}}
	sender := &mockSender{}
	p := NewH2HPoller(H2HConfig{Store: lister, Sender: sender})

	n, err := p.Poll(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Poll() = %d, %v", n, err)
	}
	if lister.Limit != 5000 || lister.Stale != 12*time.Hour {
		t.Errorf("defaults = %d, %v", lister.Limit, lister.Stale)
	}

	e := sender.Sent[0].Event
	if sender.Sent[0].Topic != broker.TopicPrematch || e.ResolveMode() != models.ModePrematch {
		t.Errorf("sent = %+v", sender.Sent[0])
	}
	if *e.FixtureID != 10 || *e.HomeTeamID != 85 || *e.AwayTeamID != 80 || e.Date != "2025-10-04T19:00:00Z" || e.HomeTeam != "PSG" {
		t.Errorf("event = %+v", e)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)

	go func() {
		done <- run(ctx, "test", time.Hour, NewLivePoller(LiveConfig{}).logger, func(ctx context.Context) (int, error) {
			calls++
			cancel()
			return 0, nil
		})
	}()

	select {
	case err := <-done:
		if err != nil || calls != 1 {
			t.Errorf("run() = %v after %d calls", err, calls)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}
