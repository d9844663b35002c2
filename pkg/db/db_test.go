package db

import (
	"path/filepath"
	"testing"
	"time"
)

func TestInitAndMigrate(t *testing.T) {
	d, err := Init(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	if _, err := d.Exec("INSERT INTO tiles (key, data) VALUES (?, ?)", "12/2048/1360", []byte{1, 2, 3}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var count int
	if err := d.QueryRow("SELECT COUNT(*) FROM tiles").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestPruneTiles(t *testing.T) {
	d, err := Init(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	old := time.Now().Add(-48 * time.Hour).UTC().Format("2006-01-02 15:04:05")
	if _, err := d.Exec("INSERT INTO tiles (key, data, created_at) VALUES (?, ?, ?)", "old", []byte{1}, old); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Exec("INSERT INTO tiles (key, data) VALUES (?, ?)", "fresh", []byte{2}); err != nil {
		t.Fatal(err)
	}

	if err := d.PruneTiles(24 * time.Hour); err != nil {
		t.Fatalf("PruneTiles: %v", err)
	}

	var count int
	if err := d.QueryRow("SELECT COUNT(*) FROM tiles").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count after prune = %d, want 1", count)
	}

	var key string
	if err := d.QueryRow("SELECT key FROM tiles").Scan(&key); err != nil {
		t.Fatal(err)
	}
	if key != "fresh" {
		t.Errorf("surviving key = %q, want fresh", key)
	}
}
