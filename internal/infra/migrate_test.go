package infra

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/app?sslmode=disable": "pgx5://u:p@db:5432/app?sslmode=disable",
		"postgresql://db/app":                        "pgx5://db/app",
		"pgx5://db/app":                              "pgx5://db/app",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	if len(ups) == 0 {
		t.Fatalf("no migrations embedded")
	}
	for v := range ups {
		if !downs[v] {
			t.Fatalf("migration %s has no down file", v)
		}
	}
}

func TestMigrateRequiresURL(t *testing.T) {
	if err := Migrate(""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	client.Close()

	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewPostgresPool(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty database url")
	}
}
