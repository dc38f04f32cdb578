package persistence_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nkrishang/mad-protocol/internal/persistence"
	"github.com/nkrishang/mad-protocol/internal/testutil"
)

// These tests need a real Postgres (MAD_TEST_POSTGRES_DSN) and are
// skipped otherwise.

func setupEventLog(t *testing.T) (context.Context, *sql.DB, *persistence.SnapshotManager, *persistence.EventLogWriter, *persistence.PostgresIdempotencyChecker) {
	t.Helper()
	db := testutil.PostgresDB(t)
	ctx := context.Background()

	if err := persistence.NewMigrator(db, "../../migrations").Up(ctx); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	// Each test run works with fresh sequences; clean out prior rows.
	for _, stmt := range []string{
		"TRUNCATE event_log.journal",
		"TRUNCATE event_log.snapshots",
		"TRUNCATE event_log.events",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("cleanup: %v", err)
		}
	}

	return ctx, db, persistence.NewSnapshotManager(db, nil), persistence.NewEventLogWriter(db), persistence.NewPostgresIdempotencyChecker(db)
}

func testEventRow(seq int64, eventType, idemKey string) persistence.EventRow {
	var hash, prev [32]byte
	hash[0] = byte(seq + 1)
	prev[0] = byte(seq)
	return persistence.EventRow{
		Sequence:       seq,
		EventType:      eventType,
		IdempotencyKey: idemKey,
		Partition:      "ops",
		Payload:        []byte(fmt.Sprintf(`{"seq":%d}`, seq)),
		StateHash:      hash[:],
		PrevHash:       prev[:],
		Timestamp:      time.UnixMicro(1_700_000_000_000_000 + seq),
		SourceSequence: seq,
	}
}

func TestWriter_EventBatchIsIdempotent(t *testing.T) {
	ctx, db, snapshots, writer, checker := setupEventLog(t)

	rows := []persistence.EventRow{
		testEventRow(0, "MintRequested", "op-a"),
		testEventRow(1, "StakeRequested", "op-b"),
	}

	if err := writer.WriteEventBatch(ctx, db, rows); err != nil {
		t.Fatalf("first write: %v", err)
	}
	// Re-send the same batch, as a crashed worker would.
	if err := writer.WriteEventBatch(ctx, db, rows); err != nil {
		t.Fatalf("second write: %v", err)
	}

	seq, err := snapshots.LatestSequence(ctx)
	if err != nil {
		t.Fatalf("latest sequence: %v", err)
	}
	if seq != 1 {
		t.Errorf("latest sequence: got %d, want 1", seq)
	}

	isDup, err := checker.IsDuplicate("MintRequested", "op-a")
	if err != nil {
		t.Fatalf("dedup lookup: %v", err)
	}
	if !isDup {
		t.Error("written event not detected as duplicate")
	}

	isDup, err = checker.IsDuplicate("MintRequested", "op-never-seen")
	if err != nil {
		t.Fatalf("dedup lookup: %v", err)
	}
	if isDup {
		t.Error("unknown key detected as duplicate")
	}
}

func TestWriter_JournalBatch(t *testing.T) {
	ctx, db, _, writer, _ := setupEventLog(t)

	journals := []persistence.JournalRow{
		{
			JournalID:     uuid.NewString(),
			BatchID:       uuid.NewString(),
			EventRef:      "op-a",
			Sequence:      0,
			DebitAccount:  "system:vault:WETH",
			CreditAccount: "external:deposits:WETH",
			AssetID:       2,
			Amount:        10_000_000_000,
			JournalType:   0,
			Timestamp:     1_700_000_000_000_000,
		},
	}

	if err := writer.WriteJournalBatch(ctx, db, journals); err != nil {
		t.Fatalf("write journals: %v", err)
	}
	if err := writer.WriteJournalBatch(ctx, db, journals); err != nil {
		t.Fatalf("re-write journals: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_log.journal WHERE event_ref = 'op-a'`,
	).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("journal rows: got %d, want 1", count)
	}
}

func TestSnapshotManager_SaveLoadVerify(t *testing.T) {
	ctx, db, snapshots, writer, _ := setupEventLog(t)

	if err := writer.WriteEventBatch(ctx, db, []persistence.EventRow{
		testEventRow(0, "MintRequested", "op-a"),
		testEventRow(1, "RedeemRequested", "op-b"),
		testEventRow(2, "StakeRequested", "op-c"),
	}); err != nil {
		t.Fatalf("seed events: %v", err)
	}

	data := &persistence.SnapshotData{
		Sequence:      1,
		StateHash:     []byte{2},
		Prices:        map[string]persistence.PriceSnap{},
		SequenceState: map[string]int64{"ops": 2},
		CreatedAt:     time.Now().UTC(),
	}
	if err := snapshots.Save(ctx, data); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := snapshots.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil || loaded.Sequence != 1 {
		t.Fatalf("loaded snapshot: %+v", loaded)
	}

	tail, err := snapshots.LoadEventsFrom(ctx, loaded.Sequence)
	if err != nil {
		t.Fatalf("load tail: %v", err)
	}
	if len(tail) != 1 || tail[0].Sequence != 2 {
		t.Fatalf("tail: got %d rows (first seq %v)", len(tail), tail)
	}

	if err := snapshots.MarkVerified(ctx, loaded.Sequence); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	var verified bool
	if err := db.QueryRowContext(ctx,
		`SELECT verified FROM event_log.snapshots WHERE sequence = 1`,
	).Scan(&verified); err != nil {
		t.Fatalf("read verified flag: %v", err)
	}
	if !verified {
		t.Error("snapshot not marked verified")
	}
}
