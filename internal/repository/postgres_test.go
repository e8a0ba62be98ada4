package repository_test

import (
	"context"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hray3182/nudge/internal/database"
	"github.com/hray3182/nudge/internal/repository"
	"github.com/hray3182/nudge/internal/repository/storetest"
)

// Runs only against a disposable database.
const testURIEnv = "NUDGE_TEST_DATABASE_URI"

func testURI(t *testing.T) string {
	t.Helper()
	uri := os.Getenv(testURIEnv)
	if uri == "" {
		t.Skipf("%s not set", testURIEnv)
	}
	return uri
}

func TestPostgres(t *testing.T) {
	uri := testURI(t)
	ctx := context.Background()
	db, err := database.New(ctx, uri)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.Migrate(ctx, zerolog.Nop()); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	db.Close()

	storetest.Run(t, func(t *testing.T) repository.Store {
		db, err := database.New(ctx, uri)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		return repository.NewPostgres(db)
	})
}

func TestPostgresTimezoneKeepsSingleRow(t *testing.T) {
	uri := testURI(t)
	ctx := context.Background()
	db, err := database.New(ctx, uri)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.Migrate(ctx, zerolog.Nop()); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	st := repository.NewPostgres(db)
	defer st.Close()

	user := rand.Int64N(1<<40) + 1
	if _, err := st.GetTimezone(ctx, user); err != nil {
		t.Fatalf("GetTimezone: %v", err)
	}
	for _, zone := range []string{"Etc/GMT-3", "Etc/GMT-3", "Etc/GMT+5"} {
		if err := st.SetTimezone(ctx, user, zone); err != nil {
			t.Fatalf("SetTimezone(%q): %v", zone, err)
		}
	}

	var rows int
	err = db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_settings WHERE user_id = $1`, user).Scan(&rows)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Fatalf("user_settings has %d rows for the user, want 1", rows)
	}
}
