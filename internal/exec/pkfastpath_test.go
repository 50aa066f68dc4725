package exec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yamldb/yamldb/internal/exec"
	"github.com/yamldb/yamldb/internal/schema"
	"github.com/yamldb/yamldb/internal/sqlparse/parser"
	"github.com/yamldb/yamldb/internal/value"
)

func usersStorage(t *testing.T) *schema.Storage {
	t.Helper()
	db := schema.NewDatabase("test")
	users := schema.NewTable("users", []schema.Column{
		{Name: "id", Type: value.Integer(), PrimaryKey: true},
		{Name: "name", Type: value.Text(), Nullable: true},
	})
	require.NoError(t, users.InsertRow([]value.Value{value.NewInteger(1), value.NewText("alice")}))
	require.NoError(t, users.InsertRow([]value.Value{value.NewInteger(2), value.NewText("bob")}))
	require.NoError(t, db.AddTable(users))
	return schema.NewStorage(db)
}

func runExec(t *testing.T, st *schema.Storage, sql string) *exec.Result {
	t.Helper()
	stmts, err := parser.Parse(sql)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	x := exec.New(st.Snapshot(), st)
	res, err := x.Execute(stmts[0])
	require.NoError(t, err)
	return res
}

func TestPKFastPathHit(t *testing.T) {
	st := usersStorage(t)
	res := runExec(t, st, "SELECT id, name FROM users WHERE id = 2")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "bob", res.Rows[0][1].Str)
}

func TestPKFastPathMiss(t *testing.T) {
	st := usersStorage(t)
	res := runExec(t, st, "SELECT id, name FROM users WHERE id = 99")
	assert.Empty(t, res.Rows)
}

func TestPKFastPathFallsBackOnNonPKPredicate(t *testing.T) {
	st := usersStorage(t)
	res := runExec(t, st, "SELECT id, name FROM users WHERE name = 'bob'")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "bob", res.Rows[0][1].Str)
}

func TestPKFastPathFallsBackOnCompoundWhere(t *testing.T) {
	st := usersStorage(t)
	res := runExec(t, st, "SELECT id, name FROM users WHERE id = 2 AND name = 'bob'")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "bob", res.Rows[0][1].Str)

	res = runExec(t, st, "SELECT id, name FROM users WHERE id = 2 AND name = 'alice'")
	assert.Empty(t, res.Rows)
}

func TestPKFastPathFallsBackOnJoin(t *testing.T) {
	st := usersStorage(t)
	res := runExec(t, st, "SELECT u.id FROM users u JOIN users v ON u.id = v.id WHERE u.id = 2")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(2), res.Rows[0][0].I64)
}

func TestPKFastPathIgnoredWithoutStorage(t *testing.T) {
	db := schema.NewDatabase("test")
	users := schema.NewTable("users", []schema.Column{
		{Name: "id", Type: value.Integer(), PrimaryKey: true},
	})
	require.NoError(t, users.InsertRow([]value.Value{value.NewInteger(1)}))
	require.NoError(t, db.AddTable(users))

	stmts, err := parser.Parse("SELECT id FROM users WHERE id = 1")
	require.NoError(t, err)
	x := exec.New(db, nil)
	res, err := x.Execute(stmts[0])
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestPKFastPathStaleSnapshotFallsBack(t *testing.T) {
	st := usersStorage(t)
	snap := st.Snapshot()

	db2 := schema.NewDatabase("test2")
	t2 := schema.NewTable("users", []schema.Column{
		{Name: "id", Type: value.Integer(), PrimaryKey: true},
		{Name: "name", Type: value.Text(), Nullable: true},
	})
	require.NoError(t, t2.InsertRow([]value.Value{value.NewInteger(2), value.NewText("carol")}))
	require.NoError(t, db2.AddTable(t2))
	st.Swap(db2)

	stmts, err := parser.Parse("SELECT id, name FROM users WHERE id = 2")
	require.NoError(t, err)
	x := exec.New(snap, st)
	res, err := x.Execute(stmts[0])
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "bob", res.Rows[0][1].Str)
}
