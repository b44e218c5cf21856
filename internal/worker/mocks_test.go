package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/matchcast/predictor/internal/broker"
	"github.com/matchcast/predictor/internal/models"
)

type upsertedPrediction struct {
	Kind      models.PredictionKind
	FixtureID int64
	Probs     models.Probabilities
	Meta      models.PredictionMeta
}

// MockStore implements LiveStore and PrematchStore, recording every write.
type MockStore struct {
	mu sync.Mutex

	Fixtures     []models.Fixture
	LiveFixtures []models.Fixture
	Stats        map[int64]models.MatchStats
	Summaries    []models.H2HSummary
	Predictions  []upsertedPrediction
	Upcoming     []models.UpcomingH2H

	Err           error
	PredictionErr map[int64]error
	Calls         []string
}

func NewMockStore() *MockStore {
	return &MockStore{Stats: make(map[int64]models.MatchStats), PredictionErr: make(map[int64]error)}
}

func (m *MockStore) record(call string) {
	m.mu.Lock()
	m.Calls = append(m.Calls, call)
	m.mu.Unlock()
}

func (m *MockStore) UpsertFixtures(ctx context.Context, fixtures []models.Fixture) (int, error) {
	m.record("fixtures")
	if m.Err != nil {
		return 0, m.Err
	}
	m.Fixtures = append(m.Fixtures, fixtures...)
	return len(fixtures), nil
}

func (m *MockStore) UpsertLiveFixture(ctx context.Context, f models.Fixture) error {
	m.record("live_fixture")
	if m.Err != nil {
		return m.Err
	}
	m.LiveFixtures = append(m.LiveFixtures, f)
	return nil
}

func (m *MockStore) UpsertMatchStats(ctx context.Context, fixtureID int64, stats models.MatchStats) error {
	m.record("stats")
	if m.Err != nil {
		return m.Err
	}
	m.Stats[fixtureID] = stats
	return nil
}

func (m *MockStore) UpsertH2H(ctx context.Context, summaries []models.H2HSummary) (int, error) {
	m.record("h2h")
	if m.Err != nil {
		return 0, m.Err
	}
	m.Summaries = append(m.Summaries, summaries...)
	return len(summaries), nil
}

func (m *MockStore) UpsertPrediction(ctx context.Context, kind models.PredictionKind, fixtureID int64, p models.Probabilities, meta models.PredictionMeta) error {
	m.record("prediction_" + string(kind))
	if err := m.PredictionErr[fixtureID]; err != nil {
		return err
	}
	if m.Err != nil {
		return m.Err
	}
	m.Predictions = append(m.Predictions, upsertedPrediction{Kind: kind, FixtureID: fixtureID, Probs: p, Meta: meta})
	return nil
}

func (m *MockStore) UpcomingWithH2H(ctx context.Context, limit int) ([]models.UpcomingH2H, error) {
	m.record("upcoming")
	if m.Err != nil {
		return nil, m.Err
	}
	if limit > 0 && len(m.Upcoming) > limit {
		return m.Upcoming[:limit], nil
	}
	return m.Upcoming, nil
}

// MockPredictor returns a fixed distribution and records its inputs.
type MockPredictor struct {
	Probs  models.Probabilities
	Err    error
	Panic  bool
	Inputs []models.FeatureVector
}

func (m *MockPredictor) Infer(v models.FeatureVector) (models.Probabilities, error) {
	if m.Panic {
		panic("model exploded")
	}
	m.Inputs = append(m.Inputs, v)
	return m.Probs, m.Err
}

type MockPublisher struct {
	Published []models.OutboundPrediction
	Err       error
}

func (m *MockPublisher) PublishPrediction(ctx context.Context, p models.OutboundPrediction) error {
	if m.Err != nil {
		return m.Err
	}
	m.Published = append(m.Published, p)
	return nil
}

type MockRecorder struct {
	Records []ArchiveRecord
}

func (m *MockRecorder) Enqueue(rec ArchiveRecord) bool {
	m.Records = append(m.Records, rec)
	return true
}

// MockH2HSource serves canned meetings.
type MockH2HSource struct {
	Meetings []models.H2HMeeting
	Err      error
	Panic    bool
	Calls    [][3]int64
}

func (m *MockH2HSource) HeadToHead(ctx context.Context, teamA, teamB int64, last int) ([]models.H2HMeeting, error) {
	m.Calls = append(m.Calls, [3]int64{teamA, teamB, int64(last)})
	if m.Panic {
		panic("h2h decoder exploded")
	}
	return m.Meetings, m.Err
}

// MockHandler records payloads and returns a fixed outcome.
type MockHandler struct {
	mu       sync.Mutex
	Outcome  Outcome
	Payloads []string
}

func (m *MockHandler) Handle(ctx context.Context, payload []byte) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Payloads = append(m.Payloads, string(payload))
	if m.Outcome == "" {
		return OutcomeProcessed
	}
	return m.Outcome
}

func (m *MockHandler) Seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Payloads...)
}

// MockReader implements StreamReader over in-memory queues.
type MockReader struct {
	mu       sync.Mutex
	Pending  map[string][]broker.Message
	Claimed  map[string][]broker.Message
	New      map[string][]broker.Message
	Acked    []string
	Groups   []string
	ReadErrs int
}

func NewMockReader() *MockReader {
	return &MockReader{
		Pending: make(map[string][]broker.Message),
		Claimed: make(map[string][]broker.Message),
		New:     make(map[string][]broker.Message),
	}
}

func (m *MockReader) EnsureGroup(ctx context.Context, stream string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Groups = append(m.Groups, stream)
	return nil
}

func (m *MockReader) Claim(ctx context.Context, stream string) ([]broker.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.Claimed[stream]
	delete(m.Claimed, stream)
	return msgs, nil
}

func (m *MockReader) ReadPending(ctx context.Context, stream string) ([]broker.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.Pending[stream]
	delete(m.Pending, stream)
	return msgs, nil
}

func (m *MockReader) ReadNew(ctx context.Context, stream string) ([]broker.Message, error) {
	m.mu.Lock()
	if m.ReadErrs > 0 {
		m.ReadErrs--
		m.mu.Unlock()
		return nil, errors.New("connection reset")
	}
	msgs := m.New[stream]
	delete(m.New, stream)
	m.mu.Unlock()

	if len(msgs) == 0 {
		// Emulate a blocking read that times out.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
	return msgs, nil
}

func (m *MockReader) Ack(ctx context.Context, msg broker.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Acked = append(m.Acked, msg.ID)
	return nil
}

func (m *MockReader) AckedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Acked...)
}

// MockClickHouseConn implements BatchConn for testing
type MockClickHouseConn struct {
	mu      sync.Mutex
	Execs   []string
	Batches []*MockBatch
	SendErr error
	PrepErr error
}

func (m *MockClickHouseConn) Exec(ctx context.Context, query string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Execs = append(m.Execs, query)
	return nil
}

func (m *MockClickHouseConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	if m.PrepErr != nil {
		return nil, m.PrepErr
	}
	b := &MockBatch{Query: query, sendErr: m.SendErr, conn: m}
	m.mu.Lock()
	m.Batches = append(m.Batches, b)
	m.mu.Unlock()
	return b, nil
}

func (m *MockClickHouseConn) SentRows() [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows [][]any
	for _, b := range m.Batches {
		if b.Sent {
			rows = append(rows, b.RowsAppended...)
		}
	}
	return rows
}

// MockBatch implements driver.Batch; methods the archive never calls are left to
// the embedded nil interface.
type MockBatch struct {
	driver.Batch
	Query        string
	RowsAppended [][]any
	Sent         bool
	sendErr      error
	conn         *MockClickHouseConn
}

func (m *MockBatch) Append(v ...any) error {
	m.conn.mu.Lock()
	defer m.conn.mu.Unlock()
	m.RowsAppended = append(m.RowsAppended, v)
	return nil
}

func (m *MockBatch) Send() error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.conn.mu.Lock()
	defer m.conn.mu.Unlock()
	m.Sent = true
	return nil
}
