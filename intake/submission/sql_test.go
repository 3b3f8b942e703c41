package submission

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteSinkAppendsRows(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "db", "submissions.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	sink, err := NewSQLSink(db, DriverSQLite)
	if err != nil {
		t.Fatalf("NewSQLSink: %v", err)
	}
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	sink.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for uid := int64(1); uid <= 3; uid++ {
		if err := sink.Append(ctx, sample(uid)); err != nil {
			t.Fatalf("append %d: %v", uid, err)
		}
	}

	n, err := sink.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("count = %d, %v", n, err)
	}
	recs, err := sink.Records(ctx)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	for i, r := range recs {
		if r.UserID != int64(i+1) {
			t.Fatalf("row %d user = %d, rows out of order", i, r.UserID)
		}
		if r.Course != "Python" || r.Language != "kz" || r.Name != "Алия" {
			t.Fatalf("unexpected row: %+v", r)
		}
	}
}

func TestSQLSinkWrapsFailures(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "submissions.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sink, err := NewSQLSink(db, DriverSQLite)
	if err != nil {
		t.Fatalf("NewSQLSink: %v", err)
	}
	_ = db.Close()

	err = sink.Append(ctx, sample(1))
	var we *WriteError
	if !errors.As(err, &we) || we.Sink != DriverSQLite {
		t.Fatalf("expected sqlite WriteError, got %v", err)
	}
}

func TestNewSQLSinkRequiresDB(t *testing.T) {
	if _, err := NewSQLSink(nil, DriverPostgres); err == nil {
		t.Fatal("expected error for nil db")
	}
}
