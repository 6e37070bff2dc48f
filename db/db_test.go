package db

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(Migrations, MigrationsDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(entries) < 3 {
		t.Fatalf("expected at least 3 migrations, got %d", len(entries))
	}
	for _, entry := range entries {
		data, err := fs.ReadFile(Migrations, MigrationsDir+"/"+entry.Name())
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		body := string(data)
		if !strings.Contains(body, "+goose Up") || !strings.Contains(body, "+goose Down") {
			t.Errorf("%s lacks goose Up/Down sections", entry.Name())
		}
	}
}
