package reload_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamldb/yamldb/internal/reload"
	"github.com/yamldb/yamldb/internal/schema"
	"github.com/yamldb/yamldb/internal/value"
)

const initialYAML = `
database:
  name: testdb
tables:
  users:
    columns:
      id: "INTEGER PRIMARY KEY"
      name: "TEXT"
    data:
      - { id: 1, name: "alice" }
`

const updatedYAML = `
database:
  name: testdb
tables:
  users:
    columns:
      id: "INTEGER PRIMARY KEY"
      name: "TEXT"
    data:
      - { id: 1, name: "alice" }
      - { id: 2, name: "bob" }
`

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.yaml")
	require.NoError(t, os.WriteFile(path, []byte(initialYAML), 0o644))

	db := schema.NewDatabase("testdb")
	tbl := schema.NewTable("users", []schema.Column{
		{Name: "id", Type: value.Integer(), PrimaryKey: true},
		{Name: "name", Type: value.Text(), Nullable: true},
	})
	require.NoError(t, tbl.InsertRow([]value.Value{value.NewInteger(1), value.NewText("alice")}))
	require.NoError(t, db.AddTable(tbl))
	storage := schema.NewStorage(db)

	w, err := reload.New(path, storage)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(updatedYAML), 0o644))

	require.Eventually(t, func() bool {
		tbl, ok := storage.Snapshot().GetTable("users")
		return ok && len(tbl.Rows) == 2
	}, 3*time.Second, 50*time.Millisecond)

	tbl, ok := storage.Snapshot().GetTable("users")
	require.True(t, ok)
	assert.Len(t, tbl.Rows, 2)
}

func TestWatcherKeepsPriorSnapshotOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.yaml")
	require.NoError(t, os.WriteFile(path, []byte(initialYAML), 0o644))

	db := schema.NewDatabase("testdb")
	tbl := schema.NewTable("users", []schema.Column{
		{Name: "id", Type: value.Integer(), PrimaryKey: true},
		{Name: "name", Type: value.Text(), Nullable: true},
	})
	require.NoError(t, tbl.InsertRow([]value.Value{value.NewInteger(1), value.NewText("alice")}))
	require.NoError(t, db.AddTable(tbl))
	storage := schema.NewStorage(db)

	w, err := reload.New(path, storage)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))
	time.Sleep(2 * time.Second)

	tbl, ok := storage.Snapshot().GetTable("users")
	require.True(t, ok)
	assert.Len(t, tbl.Rows, 1)
}
