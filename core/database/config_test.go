package database

import (
	"strings"
	"testing"
)

func TestNormalizeDefaults(t *testing.T) {
	c := Config{Host: "db", User: "bot", Name: "enroll"}
	c.Normalize()
	if c.Port != "5432" || c.SSLMode != "disable" || c.MaxConnections != 5 || c.MigrationsDir != "migrations" {
		t.Fatalf("defaults = %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateMissing(t *testing.T) {
	err := Config{Host: "db"}.Validate()
	if err == nil || !strings.Contains(err.Error(), "user, name") {
		t.Fatalf("err = %v", err)
	}
}

func TestURLEscapesPassword(t *testing.T) {
	c := Config{Host: "db", Port: "5433", User: "bot", Password: "p@ss/word", Name: "enroll", SSLMode: "require"}
	got := c.URL()
	want := "postgres://bot:p%40ss%2Fword@db:5433/enroll?sslmode=require"
	if got != want {
		t.Fatalf("URL = %q, want %q", got, want)
	}
	if !strings.Contains(c.DSN(), "dbname=enroll") {
		t.Fatalf("DSN = %q", c.DSN())
	}
}

func TestSelectApplied(t *testing.T) {
	files := []string{"000001_create_submissions.up.sql", "000002_add_index.up.sql", "000003_x.up.sql"}
	if n := len(selectApplied(files, 1, 3)); n != 2 {
		t.Fatalf("applied = %d", n)
	}
	got := selectApplied(files, 0, 1)
	if len(got) != 1 || got[0] != files[0] {
		t.Fatalf("selected = %v", got)
	}
	if parseVersion("abc_x.up.sql") != 0 {
		t.Fatal("non-numeric prefix must parse as 0")
	}
}
