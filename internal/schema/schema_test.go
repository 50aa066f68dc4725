package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yamldb/yamldb/internal/schema"
	"github.com/yamldb/yamldb/internal/value"
)

func usersTable() *schema.Table {
	t := schema.NewTable("users", []schema.Column{
		{Name: "id", Type: value.Integer(), PrimaryKey: true},
		{Name: "name", Type: value.Text(), Nullable: true},
	})
	_ = t.InsertRow([]value.Value{value.NewInteger(1), value.NewText("alice")})
	_ = t.InsertRow([]value.Value{value.NewInteger(2), value.NewText("bob")})
	return t
}

func TestCaseInsensitiveLookup(t *testing.T) {
	db := schema.NewDatabase("test")
	require.NoError(t, db.AddTable(usersTable()))

	tbl, ok := db.GetTable("Users")
	require.True(t, ok)
	assert.Equal(t, "users", tbl.Name)

	idx := tbl.ColumnIndex("NAME")
	assert.Equal(t, 1, idx)
}

func TestDuplicateTableRejected(t *testing.T) {
	db := schema.NewDatabase("test")
	require.NoError(t, db.AddTable(usersTable()))
	err := db.AddTable(usersTable())
	assert.Error(t, err)
}

func TestInsertRowValidatesArityAndNullability(t *testing.T) {
	tbl := schema.NewTable("t", []schema.Column{
		{Name: "id", Type: value.Integer(), Nullable: false},
	})
	assert.Error(t, tbl.InsertRow([]value.Value{value.NewInteger(1), value.NewInteger(2)}))
	assert.Error(t, tbl.InsertRow([]value.Value{value.NewNull()}))
	assert.NoError(t, tbl.InsertRow([]value.Value{value.NewInteger(1)}))
}

func TestStoragePKIndex(t *testing.T) {
	db := schema.NewDatabase("test")
	require.NoError(t, db.AddTable(usersTable()))
	st := schema.NewStorage(db)

	row, ok := st.FindByPK(st.Snapshot(), "users", value.NewInteger(2))
	require.True(t, ok)
	assert.Equal(t, "bob", row[1].Str)

	_, ok = st.FindByPK(st.Snapshot(), "users", value.NewInteger(99))
	assert.False(t, ok)
}

func TestStorageSwapRebuildsIndex(t *testing.T) {
	db := schema.NewDatabase("test")
	require.NoError(t, db.AddTable(usersTable()))
	st := schema.NewStorage(db)

	db2 := schema.NewDatabase("test2")
	t2 := schema.NewTable("users", []schema.Column{
		{Name: "id", Type: value.Integer(), PrimaryKey: true},
		{Name: "name", Type: value.Text(), Nullable: true},
	})
	require.NoError(t, t2.InsertRow([]value.Value{value.NewInteger(7), value.NewText("carol")}))
	require.NoError(t, db2.AddTable(t2))

	st.Swap(db2)

	row, ok := st.FindByPK(st.Snapshot(), "users", value.NewInteger(7))
	require.True(t, ok)
	assert.Equal(t, "carol", row[1].Str)

	_, ok = st.FindByPK(st.Snapshot(), "users", value.NewInteger(2))
	assert.False(t, ok)

	// A caller still holding the pre-Swap snapshot must never get a hit
	// resolved against the post-Swap index.
	_, ok = st.FindByPK(db, "users", value.NewInteger(2))
	assert.False(t, ok)
}
