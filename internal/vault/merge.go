package vault

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of change a merge applied to one group or entry
type EventType int

const (
	Added EventType = iota
	Updated
	Deleted
	Moved
)

func (t EventType) String() string {
	switch t {
	case Added:
		return "Added"
	case Updated:
		return "Updated"
	case Deleted:
		return "Deleted"
	case Moved:
		return "Moved"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// MergeEvent records one change applied to the destination
type MergeEvent struct {
	ID   uuid.UUID
	Type EventType
}

// MergeReport lists warnings and events in the order the merge produced them
type MergeReport struct {
	Warnings []string
	Events   []MergeEvent
}

func (r *MergeReport) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *MergeReport) event(id uuid.UUID, t EventType) {
	r.Events = append(r.Events, MergeEvent{ID: id, Type: t})
}

// Merge merges src into dst. Groups and entries are matched by UUID and the
// most recently modified copy wins. src is never modified; dst is only
// modified when Merge succeeds.
func Merge(dst, src *Database) (*MergeReport, error) {
	if err := checkKinds(dst.Root, src.Root); err != nil {
		return nil, err
	}

	m := &merger{
		root:    cloneGroup(dst.Root),
		deleted: slices.Clone(dst.DeletedObjects),
		report:  &MergeReport{},
	}
	m.idx = index(m.root)

	m.mergeRoot(src.Root)
	m.mergeChildren(src.Root, m.root)
	m.applyDeletions(src.DeletedObjects)

	dst.Root = m.root
	dst.DeletedObjects = m.deleted
	return m.report, nil
}

// checkKinds rejects UUIDs used for a group on one side and an entry on the
// other, and roots that appear below the root on the other side
func checkKinds(dst, src *Group) error {
	dstIdx := index(dst)
	srcIdx := index(src)
	for id, sn := range srcIdx {
		dn, ok := dstIdx[id]
		if !ok {
			continue
		}
		if (sn.entry == nil) != (dn.entry == nil) {
			return fmt.Errorf("%w: %s is a group in one database and an entry in the other", ErrConflict, id)
		}
		if (sn.parent == nil) != (dn.parent == nil) {
			return fmt.Errorf("%w: %s is the root group in only one database", ErrConflict, id)
		}
	}
	return nil
}

type merger struct {
	root    *Group
	idx     map[uuid.UUID]node
	deleted []DeletedObject
	report  *MergeReport
}

func (m *merger) mergeRoot(src *Group) {
	if src.UUID != m.root.UUID {
		return
	}
	m.mergeGroupFields(m.root, src)
}

func (m *merger) mergeChildren(src, dst *Group) {
	for _, se := range src.Entries {
		m.mergeEntry(se, dst)
	}
	for _, sg := range src.Groups {
		m.mergeGroup(sg, dst)
	}
}

func (m *merger) mergeEntry(se *Entry, parent *Group) {
	n, ok := m.idx[se.UUID]
	if !ok {
		if m.deletedSince(se.UUID, se.Times.LastModification) {
			return
		}
		e := se.Clone()
		parent.AddEntry(e)
		m.idx[e.UUID] = node{entry: e, parent: parent}
		m.report.event(e.UUID, Added)
		return
	}

	de := n.entry
	if !de.sameContents(se) {
		switch newer(se.Times.LastModification, de.Times.LastModification) {
		case srcNewer:
			updateEntry(de, se)
			m.report.event(de.UUID, Updated)
		case sameTime:
			m.report.warn("entry %s was modified on both sides at %s", de.UUID, se.Times.LastModification.Format(time.RFC3339))
		case missingTime:
			m.report.warn("entry %s has no last modification time", de.UUID)
		}
	}

	if n.parent != parent {
		m.move(de.UUID, n.parent, parent, se.Times.LocationChanged, de.Times.LocationChanged, func(to *Group) {
			n.parent.removeEntry(de.UUID)
			to.AddEntry(de)
			de.Times.LocationChanged = cloneTime(se.Times.LocationChanged)
			m.idx[de.UUID] = node{entry: de, parent: to}
		})
	}
}

func (m *merger) mergeGroup(sg *Group, parent *Group) {
	n, ok := m.idx[sg.UUID]
	if !ok {
		if m.deletedSince(sg.UUID, sg.Times.LastModification) {
			if m.rescue(sg, parent, m.deletionTime(sg.UUID)) > 0 {
				m.report.warn("group %s was deleted here but has newer entries in the source, they were added to group %s", sg.UUID, parent.UUID)
			}
			return
		}
		g := sg.shallowClone()
		parent.AddGroup(g)
		m.idx[g.UUID] = node{group: g, parent: parent}
		m.report.event(g.UUID, Added)
		m.mergeChildren(sg, g)
		return
	}

	dg := n.group
	m.mergeGroupFields(dg, sg)

	if n.parent != parent {
		if dg.contains(parent.UUID) {
			m.report.warn("group %s cannot be moved into its own subgroup %s", dg.UUID, parent.UUID)
		} else {
			m.move(dg.UUID, n.parent, parent, sg.Times.LocationChanged, dg.Times.LocationChanged, func(to *Group) {
				n.parent.removeGroup(dg.UUID)
				to.AddGroup(dg)
				dg.Times.LocationChanged = cloneTime(sg.Times.LocationChanged)
				m.idx[dg.UUID] = node{group: dg, parent: to}
			})
		}
	}

	m.mergeChildren(sg, dg)
}

// rescue merges the contents of a group the destination deleted. Entries
// modified after the deletion are added to the nearest surviving ancestor,
// objects the destination still has are merged where they are. It returns
// the number of entries added.
func (m *merger) rescue(sg, parent *Group, deletedAt time.Time) int {
	added := 0
	for _, se := range sg.Entries {
		if n, ok := m.idx[se.UUID]; ok {
			m.mergeEntry(se, n.parent)
			continue
		}
		if mod := se.Times.LastModification; mod != nil && mod.After(deletedAt) {
			before := len(m.report.Events)
			m.mergeEntry(se, parent)
			added += len(m.report.Events) - before
		}
	}
	for _, sub := range sg.Groups {
		if n, ok := m.idx[sub.UUID]; ok {
			m.mergeGroup(sub, n.parent)
		} else {
			added += m.rescue(sub, parent, deletedAt)
		}
	}
	return added
}

func (m *merger) mergeGroupFields(dg, sg *Group) {
	if dg.Name == sg.Name && dg.Notes == sg.Notes {
		return
	}
	switch newer(sg.Times.LastModification, dg.Times.LastModification) {
	case srcNewer:
		dg.Name = sg.Name
		dg.Notes = sg.Notes
		dg.Times.LastModification = cloneTime(sg.Times.LastModification)
		m.report.event(dg.UUID, Updated)
	case sameTime:
		m.report.warn("group %s was modified on both sides at %s", dg.UUID, sg.Times.LastModification.Format(time.RFC3339))
	case missingTime:
		m.report.warn("group %s has no last modification time", dg.UUID)
	}
}

// move relocates id from one group to another when the source location is
// the more recent one
func (m *merger) move(id uuid.UUID, from, to *Group, srcChanged, dstChanged *time.Time, apply func(to *Group)) {
	switch newer(srcChanged, dstChanged) {
	case srcNewer:
		apply(to)
		m.report.event(id, Moved)
	case sameTime:
		m.report.warn("%s is in group %s here and in group %s in the source, both moved at %s",
			id, from.UUID, to.UUID, srcChanged.Format(time.RFC3339))
	case missingTime:
		m.report.warn("%s has no location changed time", id)
	}
}

// applyDeletions removes objects the source deleted after their last local
// modification. Non-empty groups are kept and reported. Passes repeat so a
// group whose children are also deleted goes regardless of list order.
func (m *merger) applyDeletions(objects []DeletedObject) {
	pending := slices.Clone(objects)
	for {
		var kept []DeletedObject
		for _, d := range pending {
			if !m.remove(d) {
				kept = append(kept, d)
			}
		}
		if len(kept) == len(pending) {
			break
		}
		pending = kept
	}

	for _, d := range pending {
		m.report.warn("group %s was deleted in the source but still has children", d.UUID)
	}

	for _, d := range objects {
		m.recordDeletion(d)
	}
}

// remove applies one deletion. It returns false only for a non-empty group,
// which may still empty out in a later pass.
func (m *merger) remove(d DeletedObject) bool {
	n, ok := m.idx[d.UUID]
	if !ok || n.parent == nil {
		return true
	}
	if mod := n.times().LastModification; mod != nil && !d.DeletionTime.After(*mod) {
		return true
	}

	if n.entry != nil {
		n.parent.removeEntry(d.UUID)
	} else {
		if len(n.group.Entries) > 0 || len(n.group.Groups) > 0 {
			return false
		}
		n.parent.removeGroup(d.UUID)
	}
	delete(m.idx, d.UUID)
	m.report.event(d.UUID, Deleted)
	return true
}

func (m *merger) recordDeletion(d DeletedObject) {
	for i, own := range m.deleted {
		if own.UUID == d.UUID {
			if d.DeletionTime.After(own.DeletionTime) {
				m.deleted[i].DeletionTime = d.DeletionTime
			}
			return
		}
	}
	m.deleted = append(m.deleted, d)
}

// deletedSince reports whether the destination deleted id after mod
func (m *merger) deletedSince(id uuid.UUID, mod *time.Time) bool {
	for _, d := range m.deleted {
		if d.UUID == id {
			return mod == nil || d.DeletionTime.After(*mod)
		}
	}
	return false
}

func (m *merger) deletionTime(id uuid.UUID) time.Time {
	for _, d := range m.deleted {
		if d.UUID == id {
			return d.DeletionTime
		}
	}
	return time.Time{}
}

type order int

const (
	dstNewer order = iota
	srcNewer
	sameTime
	missingTime
)

func newer(src, dst *time.Time) order {
	switch {
	case src == nil || dst == nil:
		return missingTime
	case src.After(*dst):
		return srcNewer
	case src.Equal(*dst):
		return sameTime
	default:
		return dstNewer
	}
}

// updateEntry replaces the contents of de with those of se, keeping the
// previous version and any source history in de's history
func updateEntry(de, se *Entry) {
	history := append(de.History, de.snapshot())
	for _, h := range se.History {
		if !hasVersion(history, h.Times.LastModification) {
			history = append(history, h.Clone())
		}
	}
	slices.SortStableFunc(history, func(a, b *Entry) int {
		return compareTimes(a.Times.LastModification, b.Times.LastModification)
	})

	de.Fields = maps.Clone(se.Fields)
	de.Tags = slices.Clone(se.Tags)
	de.Times.Created = cloneTime(se.Times.Created)
	de.Times.LastModification = cloneTime(se.Times.LastModification)
	de.History = history
}

func hasVersion(history []*Entry, mod *time.Time) bool {
	for _, h := range history {
		if compareTimes(h.Times.LastModification, mod) == 0 {
			return true
		}
	}
	return false
}

func compareTimes(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(*b)
	}
}

func cloneGroup(g *Group) *Group {
	c := g.shallowClone()
	for _, e := range g.Entries {
		c.Entries = append(c.Entries, e.Clone())
	}
	for _, sub := range g.Groups {
		c.Groups = append(c.Groups, cloneGroup(sub))
	}
	return c
}
