package ingest

import "testing"

func TestSQLCursorDefaults(t *testing.T) {
	c := &SQLCursor{Table: "users"}
	if c.OrderColumn() != "id" {
		t.Errorf("order column = %q, want id", c.OrderColumn())
	}
	if c.batchSize() != 1000 {
		t.Errorf("batch size = %d, want 1000", c.batchSize())
	}

	c = &SQLCursor{Table: "users", KeyColumn: "user_id", BatchSize: 50}
	if c.OrderColumn() != "user_id" {
		t.Errorf("order column = %q, want user_id", c.OrderColumn())
	}
	if c.batchSize() != 50 {
		t.Errorf("batch size = %d, want 50", c.batchSize())
	}
}

func TestNormalizeSQLValue(t *testing.T) {
	if got := normalizeSQLValue([]byte("text")); got != "text" {
		t.Errorf("bytes normalized to %v, want string", got)
	}
	if got := normalizeSQLValue(int64(7)); got != int64(7) {
		t.Errorf("int64 changed to %v", got)
	}
	if got := normalizeSQLValue(nil); got != nil {
		t.Errorf("nil changed to %v", got)
	}
}
