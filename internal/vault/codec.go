package vault

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/louib/keepass-merge/internal/crypto"
)

// Records as stored in the container. Each one is JSON, zstd-compressed and
// then encrypted on its own.

type metaRecord struct {
	Name           string          `json:"name"`
	Root           uuid.UUID       `json:"root"`
	DeletedObjects []DeletedObject `json:"deleted_objects,omitempty"`
}

type groupRecord struct {
	UUID     uuid.UUID  `json:"uuid"`
	Parent   *uuid.UUID `json:"parent,omitempty"`
	Position int        `json:"position"`
	Name     string     `json:"name"`
	Notes    string     `json:"notes,omitempty"`
	Times    Times      `json:"times"`
}

type entryRecord struct {
	UUID     uuid.UUID        `json:"uuid"`
	Parent   uuid.UUID        `json:"parent"`
	Position int              `json:"position"`
	Fields   map[string]Value `json:"fields"`
	Tags     []string         `json:"tags,omitempty"`
	Times    Times            `json:"times"`
	History  []entryRecord    `json:"history,omitempty"`
}

func newEntryRecord(e *Entry, parent uuid.UUID, pos int) entryRecord {
	r := entryRecord{
		UUID:     e.UUID,
		Parent:   parent,
		Position: pos,
		Fields:   e.Fields,
		Tags:     e.Tags,
		Times:    e.Times,
	}
	for _, h := range e.History {
		r.History = append(r.History, newEntryRecord(h, uuid.Nil, 0))
	}
	return r
}

func (r entryRecord) entry() *Entry {
	e := &Entry{
		UUID:   r.UUID,
		Fields: r.Fields,
		Tags:   r.Tags,
		Times:  r.Times,
	}
	if e.Fields == nil {
		e.Fields = make(map[string]Value)
	}
	for _, h := range r.History {
		e.History = append(e.History, h.entry())
	}
	return e
}

// flatten turns a tree into records, positions counted per parent
func flatten(db *Database) (metaRecord, []groupRecord, []entryRecord) {
	meta := metaRecord{Name: db.Name, Root: db.Root.UUID, DeletedObjects: db.DeletedObjects}

	var groups []groupRecord
	var entries []entryRecord
	var visit func(parent *uuid.UUID, pos int, g *Group)
	visit = func(parent *uuid.UUID, pos int, g *Group) {
		groups = append(groups, groupRecord{
			UUID:     g.UUID,
			Parent:   parent,
			Position: pos,
			Name:     g.Name,
			Notes:    g.Notes,
			Times:    g.Times,
		})
		for i, e := range g.Entries {
			entries = append(entries, newEntryRecord(e, g.UUID, i))
		}
		id := g.UUID
		for i, c := range g.Groups {
			visit(&id, i, c)
		}
	}
	visit(nil, 0, db.Root)
	return meta, groups, entries
}

// rebuild assembles the tree from records
func rebuild(meta metaRecord, groups []groupRecord, entries []entryRecord) (*Group, error) {
	byID := make(map[uuid.UUID]*Group, len(groups))
	for _, r := range groups {
		if _, dup := byID[r.UUID]; dup {
			return nil, fmt.Errorf("%w: duplicate group %s", ErrCorrupt, r.UUID)
		}
		byID[r.UUID] = &Group{UUID: r.UUID, Name: r.Name, Notes: r.Notes, Times: r.Times}
	}

	root, ok := byID[meta.Root]
	if !ok {
		return nil, fmt.Errorf("%w: root group %s missing", ErrCorrupt, meta.Root)
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Position < groups[j].Position })
	for _, r := range groups {
		if r.UUID == meta.Root {
			if r.Parent != nil {
				return nil, fmt.Errorf("%w: root group has a parent", ErrCorrupt)
			}
			continue
		}
		if r.Parent == nil {
			return nil, fmt.Errorf("%w: group %s has no parent", ErrCorrupt, r.UUID)
		}
		parent, ok := byID[*r.Parent]
		if !ok {
			return nil, fmt.Errorf("%w: group %s has unknown parent %s", ErrCorrupt, r.UUID, *r.Parent)
		}
		parent.AddGroup(byID[r.UUID])
	}

	// Every group must hang off the root, otherwise a cycle was stored
	reachable := index(root)
	for id := range byID {
		if _, ok := reachable[id]; !ok {
			return nil, fmt.Errorf("%w: group %s is detached", ErrCorrupt, id)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	seen := make(map[uuid.UUID]bool, len(entries))
	for _, r := range entries {
		if seen[r.UUID] || byID[r.UUID] != nil {
			return nil, fmt.Errorf("%w: duplicate entry %s", ErrCorrupt, r.UUID)
		}
		seen[r.UUID] = true
		parent, ok := byID[r.Parent]
		if !ok {
			return nil, fmt.Errorf("%w: entry %s has unknown parent %s", ErrCorrupt, r.UUID, r.Parent)
		}
		parent.AddEntry(r.entry())
	}
	return root, nil
}

// codec compresses and encrypts records
type codec struct {
	enc *crypto.Encryptor
	zw  *zstd.Encoder
	zr  *zstd.Decoder
}

func newCodec(enc *crypto.Encryptor) (*codec, error) {
	zw, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}
	zr, err := zstd.NewReader(nil)
	if err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	return &codec{enc: enc, zw: zw, zr: zr}, nil
}

func (c *codec) seal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	defer crypto.ClearBytes(data)

	compressed := c.zw.EncodeAll(data, nil)
	defer crypto.ClearBytes(compressed)

	return c.enc.Encrypt(compressed)
}

func (c *codec) open(sealed []byte, v any) error {
	compressed, err := c.enc.Decrypt(sealed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer crypto.ClearBytes(compressed)

	data, err := c.zr.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer crypto.ClearBytes(data)

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

func (c *codec) close() {
	c.zw.Close()
	c.zr.Close()
}
