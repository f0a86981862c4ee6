package nettables

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestTablePaths(t *testing.T) {
	store := NewServerStore(DefaultTypeRegistry())
	root := NewTable(store, "")
	assert.Equal(t, root.String(), "/")

	drive := root.GetSubTable("drive")
	assert.Equal(t, drive.Path(), "/drive")
	assert.Equal(t, drive.PutNumber("speed", 1.5), nil)
	assert.Equal(t, drive.PutBoolean("enabled", true), nil)
	assert.Equal(t, drive.GetSubTable("left").PutNumber("current", 3.0), nil)
	assert.Equal(t, drive.GetSubTable("right").PutNumber("current", 4.0), nil)
	assert.Equal(t, root.PutString("mode", "auto"), nil)

	assert.Equal(t, store.Keys(), []string{
		"/drive/speed",
		"/drive/enabled",
		"/drive/left/current",
		"/drive/right/current",
		"/mode",
	})

	assert.Equal(t, root.Keys(), []string{"mode"})
	assert.Equal(t, root.SubTables(), []string{"drive"})
	assert.Equal(t, drive.Keys(), []string{"speed", "enabled"})
	assert.Equal(t, drive.SubTables(), []string{"left", "right"})

	assert.Equal(t, drive.ContainsKey("speed"), true)
	assert.Equal(t, drive.ContainsKey("left"), false)
	assert.Equal(t, drive.ContainsSubTable("left"), true)
	assert.Equal(t, drive.ContainsSubTable("speed"), false)
	assert.Equal(t, root.ContainsSubTable("drive"), true)

	// a trailing separator names the same table
	assert.Equal(t, NewTable(store, "/drive/").Keys(), []string{"speed", "enabled"})
}

func TestTableTypedValues(t *testing.T) {
	store := NewServerStore(DefaultTypeRegistry())
	table := NewTable(store, "/t")

	assert.Equal(t, table.PutBoolean("b", true), nil)
	assert.Equal(t, table.PutNumber("n", 2.5), nil)
	assert.Equal(t, table.PutString("s", "VaLuE"), nil)
	assert.Equal(t, table.PutBooleanArray("ba", []bool{true, false}), nil)
	assert.Equal(t, table.PutNumberArray("na", []float64{1, 2}), nil)
	assert.Equal(t, table.PutStringArray("sa", []string{"a"}), nil)

	assert.Equal(t, table.GetBoolean("b", false), true)
	assert.Equal(t, table.GetNumber("n", 0), 2.5)
	assert.Equal(t, table.GetString("s", ""), "VaLuE")
	assert.Equal(t, table.GetBooleanArray("ba", nil), []bool{true, false})
	assert.Equal(t, table.GetNumberArray("na", nil), []float64{1, 2})
	assert.Equal(t, table.GetStringArray("sa", nil), []string{"a"})

	// missing keys and other types give the default
	assert.Equal(t, table.GetNumber("missing", 7), 7.0)
	assert.Equal(t, table.GetNumber("s", 7), 7.0)
	assert.Equal(t, table.GetString("n", "default"), "default")

	value, err := table.GetValue("n")
	assert.Equal(t, err, nil)
	assert.Equal(t, value, 2.5)
	assert.Equal(t, table.PutValue("n", 3.5), nil)
	assert.Equal(t, table.GetNumber("n", 0), 3.5)
}

func TestTableListeners(t *testing.T) {
	store := NewServerStore(DefaultTypeRegistry())
	table := NewTable(store, "/t")
	assert.Equal(t, table.PutNumber("a", 1), nil)

	type notification struct {
		key   string
		value any
		isNew bool
	}
	keyNotifications := []notification{}
	tableNotifications := []notification{}
	subTables := []string{}

	table.AddKeyListener("a", func(table *Table, key string, value any, isNew bool) {
		keyNotifications = append(keyNotifications, notification{key, value, isNew})
	}, true)
	removeTableListener := table.AddTableListener(func(table *Table, key string, value any, isNew bool) {
		tableNotifications = append(tableNotifications, notification{key, value, isNew})
	}, true)
	table.AddSubTableListener(func(table *Table, name string, subTable *Table) {
		subTables = append(subTables, name)
	})

	// an accepted update with the same value
	assert.Equal(t, table.PutNumber("a", 1), nil)
	assert.Equal(t, table.PutNumber("a", 2), nil)
	assert.Equal(t, table.PutNumber("b", 1), nil)
	assert.Equal(t, table.GetSubTable("x").PutNumber("a", 1), nil)
	assert.Equal(t, table.GetSubTable("x").PutNumber("b", 1), nil)
	assert.Equal(t, table.GetSubTable("y").PutNumber("a", 1), nil)
	assert.Equal(t, store.PutValue("/other/a", 1.0), nil)

	assert.Equal(t, keyNotifications, []notification{
		{"a", 1.0, true},
		{"a", 1.0, false},
		{"a", 2.0, false},
	})
	assert.Equal(t, tableNotifications, []notification{
		{"a", 1.0, true},
		{"a", 2.0, false},
		{"b", 1.0, true},
	})
	assert.Equal(t, subTables, []string{"x", "y"})

	removeTableListener()
	assert.Equal(t, table.PutNumber("a", 3), nil)
	assert.Equal(t, len(tableNotifications), 3)
	assert.Equal(t, len(keyNotifications), 4)
}
