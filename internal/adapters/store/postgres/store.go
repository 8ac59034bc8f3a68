package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/suhail953/wattflow/internal/adapters/store"
	"github.com/suhail953/wattflow/internal/domain"
	"github.com/suhail953/wattflow/internal/ports"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store keeps records as rows with the samples in a JSONB column.
type Store struct {
	db        *sql.DB
	tableName string
	state     *store.State
	now       func() time.Time
	newID     func() string
}

// New wraps an open pool. The pool is assumed reachable until an operation
// says otherwise.
func New(db *sql.DB, table string) (*Store, error) {
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", table)
	}
	return &Store{
		db:        db,
		tableName: table,
		state:     store.NewState(true),
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}, nil
}

// Open connects with lib/pq and prepares the schema. A failed ping is not
// fatal: the store is returned disconnected so the service can keep running.
func Open(ctx context.Context, connString, table string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}
	s, err := New(db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		return s, fmt.Errorf("postgres ping: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return s, fmt.Errorf("postgres schema: %w", err)
	}
	return s, nil
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + s.tableName + " (" +
			"id UUID PRIMARY KEY, " +
			"mac TEXT NOT NULL, " +
			"client_id TEXT, " +
			"topic TEXT, " +
			"source TEXT NOT NULL, " +
			"data JSONB NOT NULL, " +
			"latest_sample_ts BIGINT, " +
			"received_at TIMESTAMPTZ NOT NULL)",
		"CREATE INDEX IF NOT EXISTS " + s.tableName + "_mac_received_idx ON " + s.tableName + " (mac, received_at DESC)",
		"CREATE INDEX IF NOT EXISTS " + s.tableName + "_received_idx ON " + s.tableName + " (received_at DESC)",
		"CREATE INDEX IF NOT EXISTS " + s.tableName + "_sample_ts_idx ON " + s.tableName + " (latest_sample_ts DESC)",
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.state.Observe(err, isConnErr)
			return err
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, rec *domain.IngestedRecord) (domain.StoredRecord, error) {
	store.Stamp(rec, s.now)

	data, err := json.Marshal(rec.Samples)
	if err != nil {
		return domain.StoredRecord{}, fmt.Errorf("marshal samples: %w", err)
	}

	var latestTS sql.NullInt64
	for _, sample := range rec.Samples {
		if !latestTS.Valid || sample.Timestamp > latestTS.Int64 {
			latestTS = sql.NullInt64{Int64: sample.Timestamp, Valid: true}
		}
	}

	id := s.newID()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO "+s.tableName+" (id, mac, client_id, topic, source, data, latest_sample_ts, received_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)",
		id,
		rec.Mac,
		nullString(rec.ClientID),
		nullString(rec.Topic),
		string(rec.Source),
		data,
		latestTS,
		rec.ReceivedAt,
	)
	s.state.Observe(err, isConnErr)
	if err != nil {
		return domain.StoredRecord{}, fmt.Errorf("postgres insert: %w", err)
	}

	rec.ID = id
	return domain.StoredRecord{ID: id, ReceivedAt: rec.ReceivedAt}, nil
}

func (s *Store) Count(ctx context.Context) (uint64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.tableName).Scan(&n)
	s.state.Observe(err, isConnErr)
	if err != nil {
		return 0, fmt.Errorf("postgres count: %w", err)
	}
	return uint64(n), nil
}

func (s *Store) Latest(ctx context.Context) (*domain.IngestedRecord, error) {
	var (
		rec      domain.IngestedRecord
		clientID sql.NullString
		topic    sql.NullString
		source   string
		data     []byte
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, mac, client_id, topic, source, data, received_at FROM "+s.tableName+" ORDER BY received_at DESC LIMIT 1",
	).Scan(&rec.ID, &rec.Mac, &clientID, &topic, &source, &data, &rec.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.state.Set(true)
		return nil, nil
	}
	s.state.Observe(err, isConnErr)
	if err != nil {
		return nil, fmt.Errorf("postgres latest: %w", err)
	}

	if err := json.Unmarshal(data, &rec.Samples); err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}
	rec.ClientID = clientID.String
	rec.Topic = topic.String
	rec.Source = domain.Source(source)
	rec.ReceivedAt = rec.ReceivedAt.UTC()
	return &rec, nil
}

func (s *Store) IsConnected() bool { return s.state.Connected() }

func (s *Store) Ping(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	s.state.Set(err == nil)
	return err
}

func (s *Store) Close(context.Context) error {
	s.state.Set(false)
	return s.db.Close()
}

// isConnErr treats server-reported errors as data errors, except for the
// connection exception class (SQLSTATE 08xxx). Anything the server did not
// answer, other than caller cancellation, counts as lost connectivity.
func isConnErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08"
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	return !errors.Is(err, context.Canceled)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ ports.Store = (*Store)(nil)
