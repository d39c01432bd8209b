package migrate

import (
	"errors"
	"os"
	"testing"

	"github.com/dj258255/tymee-sub001/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	for _, dsn := range []string{"", "   "} {
		if err := Run(dsn, Up); !errors.Is(err, db.ErrEmptyDSN) {
			t.Errorf("Run(%q) err = %v, want ErrEmptyDSN", dsn, err)
		}
	}
}

func TestParseDirection(t *testing.T) {
	for _, s := range []string{"up", "down"} {
		d, err := ParseDirection(s)
		if err != nil || string(d) != s {
			t.Errorf("ParseDirection(%q) = %q, %v", s, d, err)
		}
	}
	for _, s := range []string{"", "invalid", "UP", "Up", "both"} {
		if _, err := ParseDirection(s); err == nil {
			t.Errorf("ParseDirection(%q) should fail", s)
		}
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	err := Run("postgres://localhost/test", Direction("sideways"))
	if err == nil {
		t.Fatal("Run with invalid direction should return error")
	}
}

func TestSource_ListsMigrations(t *testing.T) {
	src, err := Source()
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if first != 1 {
		t.Errorf("first version = %d, want 1", first)
	}
	next, err := src.Next(first)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next != 2 {
		t.Errorf("next version = %d, want 2", next)
	}
	if _, err := src.Next(next); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no migration after %d, got %v", next, err)
	}
}
