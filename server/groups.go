package server

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"chatrelay/models"
	"chatrelay/store"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrNotMember     = errors.New("actor is not a group member")
	ErrNoMembers     = errors.New("group has no members")
)

// Directory owns the canonical group member sets and mirrors every mutation
// to the store before the call returns. Every mutation of a group name runs
// under that name's lock, held across both the in-memory change and the
// durable write, so two mutations of the same name can never interleave and
// the store can never diverge from memory for that name; a slow store write
// stalls only mutations of that one name.
//
// Member sets are copy-on-write: a published map is never mutated, every
// change swaps in a fresh map under d.mu. Readers therefore only ever need
// d.mu, and never wait on a persist in progress.
type Directory struct {
	mu     sync.Mutex
	groups map[string]map[string]struct{}
	locks  map[string]*sync.Mutex
	store  store.GroupStore
	log    zerolog.Logger
}

// NewDirectory builds the directory from the store's persisted mirror.
func NewDirectory(st store.GroupStore, log zerolog.Logger) (*Directory, error) {
	persisted, err := st.LoadAllGroups()
	if err != nil {
		return nil, err
	}

	d := &Directory{
		groups: make(map[string]map[string]struct{}, len(persisted)),
		locks:  make(map[string]*sync.Mutex),
		store:  st,
		log:    log,
	}
	for name, members := range persisted {
		d.groups[name] = memberSet(members)
	}

	log.Info().Int("groups", len(persisted)).Msg("group directory loaded")
	return d, nil
}

func memberSet(members []string) map[string]struct{} {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return set
}

func memberList(set map[string]struct{}) []string {
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// nameLock returns the mutation lock for a group name, creating it on first
// use. Locks are never removed; one mutex per name ever seen is cheap.
func (d *Directory) nameLock(name string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	lk, ok := d.locks[name]
	if !ok {
		lk = &sync.Mutex{}
		d.locks[name] = lk
	}
	return lk
}

// persist mirrors a member set to the store. A store failure is logged and
// the in-memory state stands; the mirror catches up on the next write.
func (d *Directory) persist(name string, members []string) {
	if err := d.store.SaveGroup(name, members); err != nil {
		d.log.Warn().Err(err).Str("group", name).Msg("failed to persist group")
	}
}

func (d *Directory) unpersist(name string) {
	if err := d.store.DeleteGroup(name); err != nil {
		d.log.Warn().Err(err).Str("group", name).Msg("failed to delete persisted group")
	}
}

// Create registers a group. The creator is always part of the effective
// member set; an empty effective set fails with ErrNoMembers. An existing
// group of the same name is replaced, as the original server did.
func (d *Directory) Create(name, creator string, members []string) ([]string, error) {
	effective := append([]string(nil), members...)
	if creator != "" {
		effective = append(effective, creator)
	}
	if len(effective) == 0 {
		return nil, ErrNoMembers
	}

	lk := d.nameLock(name)
	lk.Lock()
	defer lk.Unlock()

	set := memberSet(effective)
	d.mu.Lock()
	d.groups[name] = set
	d.mu.Unlock()

	snap := memberList(set)
	d.persist(name, snap)
	return snap, nil
}

// AddMember adds newMember, provided the actor already belongs to the group.
func (d *Directory) AddMember(name, actor, newMember string) ([]string, error) {
	lk := d.nameLock(name)
	lk.Lock()
	defer lk.Unlock()

	d.mu.Lock()
	cur, ok := d.groups[name]
	if !ok {
		d.mu.Unlock()
		return nil, ErrGroupNotFound
	}
	if _, ok := cur[actor]; !ok {
		d.mu.Unlock()
		return nil, ErrNotMember
	}

	next := make(map[string]struct{}, len(cur)+1)
	for m := range cur {
		next[m] = struct{}{}
	}
	next[newMember] = struct{}{}
	d.groups[name] = next
	d.mu.Unlock()

	snap := memberList(next)
	d.persist(name, snap)
	return snap, nil
}

// RemoveMember drops a user from the group. Removing the last member deletes
// the group from the directory and the store. The returned slice is the
// remaining member set.
func (d *Directory) RemoveMember(name, user string) (remaining []string, deleted bool, err error) {
	lk := d.nameLock(name)
	lk.Lock()
	defer lk.Unlock()

	d.mu.Lock()
	cur, ok := d.groups[name]
	if !ok {
		d.mu.Unlock()
		return nil, false, ErrGroupNotFound
	}

	next := make(map[string]struct{}, len(cur))
	for m := range cur {
		if m != user {
			next[m] = struct{}{}
		}
	}

	if len(next) == 0 {
		delete(d.groups, name)
		d.mu.Unlock()
		d.unpersist(name)
		return nil, true, nil
	}

	d.groups[name] = next
	d.mu.Unlock()

	snap := memberList(next)
	d.persist(name, snap)
	return snap, false, nil
}

// Rename atomically moves the member set to a new name. The actor must be a
// member of the old group. Both name locks are taken in sorted order so two
// crossing renames cannot deadlock.
func (d *Directory) Rename(oldName, newName, actor string) ([]string, error) {
	first, second := oldName, newName
	if second < first {
		first, second = second, first
	}

	lkFirst := d.nameLock(first)
	lkFirst.Lock()
	defer lkFirst.Unlock()
	if first != second {
		lkSecond := d.nameLock(second)
		lkSecond.Lock()
		defer lkSecond.Unlock()
	}

	d.mu.Lock()
	cur, ok := d.groups[oldName]
	if !ok {
		d.mu.Unlock()
		return nil, ErrGroupNotFound
	}
	if _, ok := cur[actor]; !ok {
		d.mu.Unlock()
		return nil, ErrNotMember
	}

	delete(d.groups, oldName)
	d.groups[newName] = cur
	d.mu.Unlock()

	snap := memberList(cur)
	if oldName != newName {
		d.unpersist(oldName)
	}
	d.persist(newName, snap)
	return snap, nil
}

// Info returns the current member set.
func (d *Directory) Info(name string) ([]string, error) {
	d.mu.Lock()
	cur, ok := d.groups[name]
	d.mu.Unlock()
	if !ok {
		return nil, ErrGroupNotFound
	}

	return memberList(cur), nil
}

// GroupsFor lists every group the user belongs to, for the reconnect
// snapshot pushed after identification.
func (d *Directory) GroupsFor(user string) []models.Group {
	d.mu.Lock()
	var result []models.Group
	for name, set := range d.groups {
		if _, ok := set[user]; ok {
			result = append(result, models.Group{Name: name, Members: memberList(set)})
		}
	}
	d.mu.Unlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.groups)
}
