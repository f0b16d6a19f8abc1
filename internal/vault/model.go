package vault

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/louib/keepass-merge/internal/crypto"
)

// Standard entry fields
const (
	FieldTitle    = "Title"
	FieldUserName = "UserName"
	FieldPassword = "Password"
	FieldURL      = "URL"
	FieldNotes    = "Notes"
)

// Times holds the timestamps merge decisions are based on. A nil timestamp
// is missing, which merge reports as a warning and repair fills in.
type Times struct {
	Created          *time.Time `json:"created,omitempty"`
	LastModification *time.Time `json:"last_modification,omitempty"`
	LocationChanged  *time.Time `json:"location_changed,omitempty"`
}

// Now returns the current time at the resolution stored in databases
func Now() *time.Time {
	t := time.Now().UTC().Truncate(time.Second)
	return &t
}

// NewTimes returns timestamps all set to now
func NewTimes() Times {
	now := Now()
	return Times{Created: now, LastModification: cloneTime(now), LocationChanged: cloneTime(now)}
}

func (t Times) clone() Times {
	return Times{
		Created:          cloneTime(t.Created),
		LastModification: cloneTime(t.LastModification),
		LocationChanged:  cloneTime(t.LocationChanged),
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Value is an entry field value. Protected values are masked in reports.
type Value struct {
	Data      string `json:"data"`
	Protected bool   `json:"protected,omitempty"`
}

// Entry is a single credential record
type Entry struct {
	UUID    uuid.UUID
	Fields  map[string]Value
	Tags    []string
	Times   Times
	History []*Entry
}

// NewEntry creates an entry with a fresh UUID and current timestamps
func NewEntry() *Entry {
	return &Entry{
		UUID:   uuid.New(),
		Fields: make(map[string]Value),
		Times:  NewTimes(),
	}
}

// Get returns the data of a field, empty if unset
func (e *Entry) Get(field string) string {
	return e.Fields[field].Data
}

// Set sets a field, protecting the password field
func (e *Entry) Set(field, data string) {
	if e.Fields == nil {
		e.Fields = make(map[string]Value)
	}
	e.Fields[field] = Value{Data: data, Protected: field == FieldPassword}
}

// Title returns the title field
func (e *Entry) Title() string {
	return e.Get(FieldTitle)
}

// Clone returns a deep copy including history
func (e *Entry) Clone() *Entry {
	c := e.snapshot()
	for _, h := range e.History {
		c.History = append(c.History, h.Clone())
	}
	return c
}

// snapshot returns a deep copy without history
func (e *Entry) snapshot() *Entry {
	c := &Entry{
		UUID:   e.UUID,
		Fields: make(map[string]Value, len(e.Fields)),
		Tags:   slices.Clone(e.Tags),
		Times:  e.Times.clone(),
	}
	for k, v := range e.Fields {
		c.Fields[k] = v
	}
	return c
}

func (e *Entry) sameContents(o *Entry) bool {
	if len(e.Fields) != len(o.Fields) || !slices.Equal(e.Tags, o.Tags) {
		return false
	}
	for k, v := range e.Fields {
		if ov, ok := o.Fields[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (e *Entry) destroy() {
	for k, v := range e.Fields {
		if v.Protected {
			e.Fields[k] = Value{Protected: true}
		}
	}
	for _, h := range e.History {
		h.destroy()
	}
}

// Group is a node of the database tree
type Group struct {
	UUID    uuid.UUID
	Name    string
	Notes   string
	Times   Times
	Groups  []*Group
	Entries []*Entry
}

// NewGroup creates a group with a fresh UUID and current timestamps
func NewGroup(name string) *Group {
	return &Group{
		UUID:  uuid.New(),
		Name:  name,
		Times: NewTimes(),
	}
}

// AddGroup appends a child group
func (g *Group) AddGroup(child *Group) {
	g.Groups = append(g.Groups, child)
}

// AddEntry appends an entry
func (g *Group) AddEntry(e *Entry) {
	g.Entries = append(g.Entries, e)
}

// shallowClone copies the group without its children
func (g *Group) shallowClone() *Group {
	return &Group{
		UUID:  g.UUID,
		Name:  g.Name,
		Notes: g.Notes,
		Times: g.Times.clone(),
	}
}

func (g *Group) removeEntry(id uuid.UUID) bool {
	for i, e := range g.Entries {
		if e.UUID == id {
			g.Entries = slices.Delete(g.Entries, i, i+1)
			return true
		}
	}
	return false
}

func (g *Group) removeGroup(id uuid.UUID) bool {
	for i, c := range g.Groups {
		if c.UUID == id {
			g.Groups = slices.Delete(g.Groups, i, i+1)
			return true
		}
	}
	return false
}

func (g *Group) contains(id uuid.UUID) bool {
	if g.UUID == id {
		return true
	}
	for _, c := range g.Groups {
		if c.contains(id) {
			return true
		}
	}
	return false
}

// DeletedObject records that an entry or group was removed
type DeletedObject struct {
	UUID         uuid.UUID `json:"uuid"`
	DeletionTime time.Time `json:"deletion_time"`
}

// KDFParams are the Argon2id cost parameters of a database
type KDFParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultKDFParams returns the cost used for new databases
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Time:    crypto.DefaultTime,
		Memory:  crypto.DefaultMemory,
		Threads: crypto.DefaultThreads,
	}
}

// Database is an opened, decrypted credential database
type Database struct {
	ID             string
	Name           string
	Root           *Group
	DeletedObjects []DeletedObject

	kdf crypto.KDF
}

// Create returns a new empty database with a fresh salt
func Create(name string, params KDFParams) (*Database, error) {
	kdf, err := crypto.NewKDFWithCost(params.Time, params.Memory, params.Threads)
	if err != nil {
		return nil, err
	}
	return &Database{
		ID:   uuid.NewString(),
		Name: name,
		Root: NewGroup("Root"),
		kdf:  *kdf,
	}, nil
}

// KDFParams returns the cost parameters the database is encrypted with
func (d *Database) KDFParams() KDFParams {
	return KDFParams{Time: d.kdf.Time, Memory: d.kdf.Memory, Threads: d.kdf.Threads}
}

// FindEntry returns the entry with the given UUID, or nil
func (d *Database) FindEntry(id uuid.UUID) *Entry {
	if n, ok := index(d.Root)[id]; ok {
		return n.entry
	}
	return nil
}

// FindGroup returns the group with the given UUID, or nil
func (d *Database) FindGroup(id uuid.UUID) *Group {
	if n, ok := index(d.Root)[id]; ok {
		return n.group
	}
	return nil
}

// Walk visits every group depth-first with the names of its ancestors,
// stopping at the first error
func (d *Database) Walk(fn func(path []string, g *Group) error) error {
	return walk(nil, d.Root, fn)
}

func walk(path []string, g *Group, fn func([]string, *Group) error) error {
	if err := fn(path, g); err != nil {
		return err
	}
	childPath := append(slices.Clone(path), g.Name)
	for _, c := range g.Groups {
		if err := walk(childPath, c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Destroy blanks protected values held in memory
func (d *Database) Destroy() {
	_ = d.Walk(func(_ []string, g *Group) error {
		for _, e := range g.Entries {
			e.destroy()
		}
		return nil
	})
}

// node locates a group or entry in a tree
type node struct {
	group  *Group
	entry  *Entry
	parent *Group
}

func (n node) times() Times {
	if n.entry != nil {
		return n.entry.Times
	}
	return n.group.Times
}

func index(root *Group) map[uuid.UUID]node {
	idx := make(map[uuid.UUID]node)
	var visit func(parent, g *Group)
	visit = func(parent, g *Group) {
		idx[g.UUID] = node{group: g, parent: parent}
		for _, e := range g.Entries {
			idx[e.UUID] = node{entry: e, parent: g}
		}
		for _, c := range g.Groups {
			visit(g, c)
		}
	}
	visit(nil, root)
	return idx
}
