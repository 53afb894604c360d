package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/migrate"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	require.Equal(t, "add_pickup_index", migrate.Slug("  Add Pickup-Index! "))
	require.Equal(t, "", migrate.Slug("--- "))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	created, err := migrate.CreateSQLMigration(dir, "Purchase Notes", at)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260304050607_purchase_notes.sql"), created)
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "purchase notes", at)
	require.Error(t, err, "same version and slug must not overwrite")

	_, err = migrate.CreateSQLMigration(dir, "!!", at)
	require.Error(t, err)
}

func TestValidateFS(t *testing.T) {
	up := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]struct {
		files   fstest.MapFS
		wantErr string
	}{
		"ok": {files: fstest.MapFS{
			"20260101000000_a.sql": {Data: []byte(up)},
			"README.md":            {Data: []byte("ignored")},
		}},
		"bad name": {
			files:   fstest.MapFS{"1_a.sql": {Data: []byte(up)}},
			wantErr: "expected <YYYYMMDDHHMMSS>",
		},
		"not a timestamp": {
			files:   fstest.MapFS{"20261399000000_a.sql": {Data: []byte(up)}},
			wantErr: "not a timestamp",
		},
		"duplicate version": {
			files: fstest.MapFS{
				"20260101000000_a.sql": {Data: []byte(up)},
				"20260101000000_b.sql": {Data: []byte(up)},
			},
			wantErr: "already used",
		},
		"missing down": {
			files:   fstest.MapFS{"20260101000000_a.sql": {Data: []byte("-- +goose Up\n")}},
			wantErr: "missing",
		},
		"reversed sections": {
			files:   fstest.MapFS{"20260101000000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")}},
			wantErr: "precedes",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := migrate.ValidateFS(tc.files, ".")
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tc.wantErr), err.Error())
		})
	}
}

func TestValidateDirMissing(t *testing.T) {
	require.Error(t, migrate.ValidateDir(filepath.Join(t.TempDir(), "nope")))
	_, err := os.Stat("migrations")
	require.NoError(t, err)
}
