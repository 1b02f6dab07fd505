package proto

import "sort"

// ObjectID identifies a protocol object. 0 is reserved to mean "no object"
// wherever an 'o' argument is nullable.
type ObjectID uint32

// MethodSignature describes one request or event: its wire signature string
// and, for any 'n' (new_id) argument, the interface type to instantiate.
// Types is indexed by argument position (not by byte offset); entries for
// non-'n' arguments are nil.
type MethodSignature struct {
	Name      string
	Signature string
	Types     []*InterfaceDescriptor
}

// InterfaceDescriptor carries the ordered request/event signature tables
// for one protocol interface, plus the typed handler registered for each
// (interface, opcode) pair. RequestHandlers and EventHandlers are indexed
// in parallel with Requests and Events; a nil entry means "no handler: the
// message passes through unmodified."
type InterfaceDescriptor struct {
	Name string

	Requests []MethodSignature
	Events   []MethodSignature

	RequestHandlers []HandlerFunc
	EventHandlers   []HandlerFunc
}

// Entry is one live object table entry: an id bound to its interface.
type Entry struct {
	ID        ObjectID
	Interface *InterfaceDescriptor
}

// Table is the protocol object table: a sorted-by-id, unique-keyed set of
// entries. It is not safe for concurrent use — it is single-writer, bound
// to one direction's dispatcher, matching spec §5.
type Table struct {
	entries []Entry
}

// NewTable returns an empty object table.
func NewTable() *Table { return &Table{} }

func (t *Table) search(id ObjectID) int {
	return sort.Search(len(t.entries), func(i int) bool { return t.entries[i].ID >= id })
}

// Get looks up an entry by id.
func (t *Table) Get(id ObjectID) (Entry, bool) {
	i := t.search(id)
	if i < len(t.entries) && t.entries[i].ID == id {
		return t.entries[i], true
	}
	return Entry{}, false
}

// Insert adds a new entry, keeping entries ordered by id. It reports
// ErrDuplicateID if the id is already present.
func (t *Table) Insert(e Entry) error {
	i := t.search(e.ID)
	if i < len(t.entries) && t.entries[i].ID == e.ID {
		return ErrDuplicateID
	}
	t.entries = append(t.entries, Entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = e
	return nil
}

// Remove deletes the entry for id, shifting the tail down. It reports
// ErrUnknownObject if id is not present.
func (t *Table) Remove(id ObjectID) error {
	i := t.search(id)
	if i >= len(t.entries) || t.entries[i].ID != id {
		return ErrUnknownObject
	}
	copy(t.entries[i:], t.entries[i+1:])
	t.entries = t.entries[:len(t.entries)-1]
	return nil
}

// Len reports the number of live entries.
func (t *Table) Len() int { return len(t.entries) }

// Clear destroys every remaining entry, in ascending id order, as the
// original waypipe server.c shutdown path does (spec §3 "all remaining
// entries destroyed at shutdown"). destroy is called once per entry before
// it is dropped; it may be nil.
func (t *Table) Clear(destroy func(Entry)) {
	if destroy != nil {
		for _, e := range t.entries {
			destroy(e)
		}
	}
	t.entries = t.entries[:0]
}
