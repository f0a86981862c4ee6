package nettables

import (
	"strings"
	"sync"
)

const PathSeparator = "/"

// Node is the store view shared by clients and servers.
type Node interface {
	GetValue(name string) (any, error)
	PutValue(name string, value any) error
	ContainsKey(name string) bool
	Keys() []string
	AddEntryListener(predicate func(name string) bool, callback EntryListener, immediate bool) func()
}

// TableListener is called with the table, the key relative to the table and the new value.
type TableListener func(table *Table, key string, value any, isNew bool)

// SubTableListener is called once for each sub table seen by the listener.
type SubTableListener func(table *Table, name string, subTable *Table)

// Table is a view of the names under a path. The root table has path "".
// A key `k` of the table at path `p` is the entry name `p/k`.
type Table struct {
	node Node
	path string
}

func NewTable(node Node, path string) *Table {
	return &Table{
		node: node,
		path: strings.TrimSuffix(path, PathSeparator),
	}
}

func (self *Table) Path() string {
	return self.path
}

func (self *Table) prefix() string {
	return self.path + PathSeparator
}

func (self *Table) name(key string) string {
	return self.prefix() + key
}

// the key relative to this table, or false if the name is outside the table
func (self *Table) relativeKey(name string) (string, bool) {
	return strings.CutPrefix(name, self.prefix())
}

func (self *Table) GetSubTable(name string) *Table {
	return NewTable(self.node, self.name(name))
}

func (self *Table) ContainsKey(key string) bool {
	return self.node.ContainsKey(self.name(key))
}

func (self *Table) ContainsSubTable(name string) bool {
	subPrefix := self.name(name) + PathSeparator
	for _, n := range self.node.Keys() {
		if strings.HasPrefix(n, subPrefix) {
			return true
		}
	}
	return false
}

// the direct keys of the table in insertion order
func (self *Table) Keys() []string {
	keys := []string{}
	for _, name := range self.node.Keys() {
		if key, ok := self.relativeKey(name); ok && !strings.Contains(key, PathSeparator) {
			keys = append(keys, key)
		}
	}
	return keys
}

// the direct sub table names in the order they were first seen
func (self *Table) SubTables() []string {
	subTables := []string{}
	seen := map[string]bool{}
	for _, name := range self.node.Keys() {
		if subTable, ok := self.subTableName(name); ok && !seen[subTable] {
			seen[subTable] = true
			subTables = append(subTables, subTable)
		}
	}
	return subTables
}

func (self *Table) subTableName(name string) (string, bool) {
	key, ok := self.relativeKey(name)
	if !ok {
		return "", false
	}
	subTable, _, ok := strings.Cut(key, PathSeparator)
	return subTable, ok
}

func (self *Table) GetValue(key string) (any, error) {
	return self.node.GetValue(self.name(key))
}

func (self *Table) PutValue(key string, value any) error {
	return self.node.PutValue(self.name(key), value)
}

func getTyped[T any](table *Table, key string, defaultValue T) T {
	value, err := table.GetValue(key)
	if err != nil {
		return defaultValue
	}
	v, ok := value.(T)
	if !ok {
		return defaultValue
	}
	return v
}

func (self *Table) GetBoolean(key string, defaultValue bool) bool {
	return getTyped(self, key, defaultValue)
}

func (self *Table) PutBoolean(key string, value bool) error {
	return self.PutValue(key, value)
}

func (self *Table) GetNumber(key string, defaultValue float64) float64 {
	return getTyped(self, key, defaultValue)
}

func (self *Table) PutNumber(key string, value float64) error {
	return self.PutValue(key, value)
}

func (self *Table) GetString(key string, defaultValue string) string {
	return getTyped(self, key, defaultValue)
}

func (self *Table) PutString(key string, value string) error {
	return self.PutValue(key, value)
}

func (self *Table) GetBooleanArray(key string, defaultValue []bool) []bool {
	return getTyped(self, key, defaultValue)
}

func (self *Table) PutBooleanArray(key string, value []bool) error {
	return self.PutValue(key, value)
}

func (self *Table) GetNumberArray(key string, defaultValue []float64) []float64 {
	return getTyped(self, key, defaultValue)
}

func (self *Table) PutNumberArray(key string, value []float64) error {
	return self.PutValue(key, value)
}

func (self *Table) GetStringArray(key string, defaultValue []string) []string {
	return getTyped(self, key, defaultValue)
}

func (self *Table) PutStringArray(key string, value []string) error {
	return self.PutValue(key, value)
}

// AddKeyListener calls the listener on every accepted update of the key.
func (self *Table) AddKeyListener(key string, listener TableListener, immediate bool) func() {
	name := self.name(key)
	return self.node.AddEntryListener(
		func(n string) bool {
			return n == name
		},
		func(entry Entry, isNew bool) {
			listener(self, key, entry.Value, isNew)
		},
		immediate,
	)
}

// AddTableListener calls the listener for changes of the direct keys of the table.
// A change to the value the listener last saw for the key is not delivered.
func (self *Table) AddTableListener(listener TableListener, immediate bool) func() {
	var stateLock sync.Mutex
	lastValues := map[string]any{}

	return self.node.AddEntryListener(
		func(n string) bool {
			key, ok := self.relativeKey(n)
			return ok && !strings.Contains(key, PathSeparator)
		},
		func(entry Entry, isNew bool) {
			key, _ := self.relativeKey(entry.Name)
			duplicate := func() bool {
				stateLock.Lock()
				defer stateLock.Unlock()

				if lastValue, ok := lastValues[key]; ok && ValuesEqual(lastValue, entry.Value) {
					return true
				}
				lastValues[key] = entry.Value
				return false
			}()
			if !duplicate {
				listener(self, key, entry.Value, isNew)
			}
		},
		immediate,
	)
}

// AddSubTableListener calls the listener once for each sub table,
// starting with the sub tables that exist now.
func (self *Table) AddSubTableListener(listener SubTableListener) func() {
	var stateLock sync.Mutex
	seen := map[string]bool{}

	return self.node.AddEntryListener(
		func(n string) bool {
			_, ok := self.subTableName(n)
			return ok
		},
		func(entry Entry, isNew bool) {
			subTable, _ := self.subTableName(entry.Name)
			first := func() bool {
				stateLock.Lock()
				defer stateLock.Unlock()

				if seen[subTable] {
					return false
				}
				seen[subTable] = true
				return true
			}()
			if first {
				listener(self, subTable, self.GetSubTable(subTable))
			}
		},
		true,
	)
}

func (self *Table) String() string {
	if self.path == "" {
		return PathSeparator
	}
	return self.path
}
