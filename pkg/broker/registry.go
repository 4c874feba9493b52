package broker

import (
	"strings"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/dbusd/dbusd/internal/wire"
	"github.com/dbusd/dbusd/pkg/broker/dbuserr"
)

// RequestName return codes, per the org.freedesktop.DBus.RequestName contract.
const (
	RequestNamePrimaryOwner uint32 = 1
	RequestNameInQueue      uint32 = 2
	RequestNameExists       uint32 = 3
	RequestNameAlreadyOwner uint32 = 4
)

// ReleaseName return codes.
const (
	ReleaseNameReleased    uint32 = 1
	ReleaseNameNonExistent uint32 = 2
	ReleaseNameNotOwned    uint32 = 3
)

// StartServiceByName return codes. The broker implements no activation, so
// only the "already running" branch of the real contract is reachable.
const (
	StartServiceSuccess       uint32 = 1
	StartServiceAlreadyRunning uint32 = 2
)

// RequestName flag bits.
const (
	FlagAllowReplacement uint32 = 1 << 0
	FlagReplaceExisting  uint32 = 1 << 1
	FlagDoNotQueue       uint32 = 1 << 2
)

// NameRequest is one session's standing claim on a well-known name. It is
// mutable: a session re-requesting the same name has its flags fully
// overwritten, never merged.
type NameRequest struct {
	AllowReplacement bool
	ReplaceExisting  bool
	DoNotQueue       bool
}

// nameQueue is the insertion-ordered set of requests for one well-known
// name; the owner is whichever session holds the first (oldest) entry.
// go-ordered-map/v2 has no native "move to front" primitive (Set always
// inserts at the newest position), so promoteToFront rebuilds the map,
// preserving the relative order of everyone but the promoted session.
type nameQueue struct {
	entries *orderedmap.OrderedMap[string, *NameRequest]
}

func newNameQueue() *nameQueue {
	return &nameQueue{entries: orderedmap.New[string, *NameRequest]()}
}

func (q *nameQueue) owner() string {
	pair := q.entries.Oldest()
	if pair == nil {
		return ""
	}
	return pair.Key
}

func (q *nameQueue) promoteToFront(session string) {
	req, ok := q.entries.Get(session)
	if !ok {
		return
	}
	rebuilt := orderedmap.New[string, *NameRequest](q.entries.Len())
	rebuilt.Set(session, req)
	for pair := q.entries.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == session {
			continue
		}
		rebuilt.Set(pair.Key, pair.Value)
	}
	q.entries = rebuilt
}

func (q *nameQueue) orderedSessions() []string {
	out := make([]string, 0, q.entries.Len())
	for pair := q.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// OwnerChange describes an ownership transition a registry mutation
// produced. The registry never emits signals itself — it hands the change
// back to the caller (the router), which owns message construction and
// re-entry, keeping the registry's state logic independent of the wire
// format.
type OwnerChange struct {
	Name string
	Old  string // "" means no owner
	New  string // "" means no owner
}

// Registry owns every well-known name's queue for one server instance.
// Every mutating method is taken under a single lock, matching the
// single-critical-section discipline the cooperative scheduling model
// requires even though sessions run on their own goroutines.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*nameQueue
}

func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]*nameQueue)}
}

// RequestName implements spec.md §4.3. session is the caller's unique name.
func (r *Registry) RequestName(name, session string, flags uint32) (uint32, *OwnerChange, error) {
	if err := validateWellKnownName(name); err != nil {
		return 0, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[name]
	if !ok {
		q = newNameQueue()
		r.queues[name] = q
	}
	oldOwner := q.owner()

	req := &NameRequest{
		AllowReplacement: flags&FlagAllowReplacement != 0,
		ReplaceExisting:  flags&FlagReplaceExisting != 0,
		DoNotQueue:       flags&FlagDoNotQueue != 0,
	}

	wasOwner := oldOwner == session
	q.entries.Set(session, req)

	if oldOwner != "" && oldOwner != session {
		if ownerReq, ok := q.entries.Get(oldOwner); ok && ownerReq.AllowReplacement && req.ReplaceExisting {
			q.promoteToFront(session)
		}
	}

	// Purge do-not-queue entries that are not the (possibly new) owner.
	newOwner := q.owner()
	for _, key := range q.orderedSessions() {
		if key == newOwner {
			continue
		}
		entry, _ := q.entries.Get(key)
		if entry.DoNotQueue {
			q.entries.Delete(key)
		}
	}
	if q.entries.Len() == 0 {
		delete(r.queues, name)
	}

	finalOwner := ""
	if q.entries.Len() > 0 {
		finalOwner = q.owner()
	}
	_, stillHasEntry := q.entries.Get(session)

	var code uint32
	switch {
	case finalOwner == session && !wasOwner:
		code = RequestNamePrimaryOwner
	case finalOwner == session && wasOwner:
		code = RequestNameAlreadyOwner
	case stillHasEntry:
		code = RequestNameInQueue
	default:
		code = RequestNameExists
	}

	var change *OwnerChange
	if oldOwner != finalOwner {
		change = &OwnerChange{Name: name, Old: oldOwner, New: finalOwner}
	}
	return code, change, nil
}

// ReleaseName implements spec.md §4.3.
func (r *Registry) ReleaseName(name, session string) (uint32, *OwnerChange, error) {
	if err := validateWellKnownName(name); err != nil {
		return 0, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[name]
	if !ok {
		return ReleaseNameNonExistent, nil, nil
	}
	oldOwner := q.owner()

	if _, has := q.entries.Get(session); !has {
		return ReleaseNameNotOwned, nil, nil
	}

	q.entries.Delete(session)
	if q.entries.Len() == 0 {
		delete(r.queues, name)
	}

	newOwner := ""
	if q.entries.Len() > 0 {
		newOwner = q.owner()
	}

	var change *OwnerChange
	if oldOwner != newOwner {
		change = &OwnerChange{Name: name, Old: oldOwner, New: newOwner}
	}
	return ReleaseNameReleased, change, nil
}

// RemoveSession purges session from every queue it appears in (for
// disconnect handling, per spec.md §9's open-question resolution). It
// returns one OwnerChange per queue whose owner identity changed, in queue
// iteration order.
func (r *Registry) RemoveSession(session string) []*OwnerChange {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changes []*OwnerChange
	for name, q := range r.queues {
		if _, has := q.entries.Get(session); !has {
			continue
		}
		oldOwner := q.owner()
		q.entries.Delete(session)
		newOwner := ""
		if q.entries.Len() > 0 {
			newOwner = q.owner()
		} else {
			delete(r.queues, name)
		}
		if oldOwner != newOwner {
			changes = append(changes, &OwnerChange{Name: name, Old: oldOwner, New: newOwner})
		}
	}
	return changes
}

// ListQueuedOwners returns the unique names of every queued session for
// name, in queue order; an empty slice (not an error) for an unknown name,
// per spec.md §9's documented non-standard behaviour.
func (r *Registry) ListQueuedOwners(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[name]
	if !ok {
		return []string{}
	}
	return q.orderedSessions()
}

// GetNameOwner returns the owning unique name, or ("", false) if unowned.
// The literal bus name always resolves to itself.
func (r *Registry) GetNameOwner(name string) (string, bool) {
	if name == wire.BusName {
		return wire.BusName, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[name]
	if !ok {
		return "", false
	}
	owner := q.owner()
	return owner, owner != ""
}

// NameHasOwner reports whether name currently has an owner.
func (r *Registry) NameHasOwner(name string) bool {
	_, has := r.GetNameOwner(name)
	return has
}

// QueueNames returns every well-known name with a live queue, in no
// particular order; callers combine this with live unique names to build
// ListNames's result.
func (r *Registry) QueueNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.queues))
	for name := range r.queues {
		out = append(out, name)
	}
	return out
}

func validateWellKnownName(name string) error {
	if name == "" {
		return dbuserr.NewInvalidArgs("bus name may not be empty")
	}
	if strings.HasPrefix(name, ":") {
		return dbuserr.NewInvalidArgs("cannot acquire a unique name %q", name)
	}
	if !strings.Contains(name, ".") {
		return dbuserr.NewInvalidArgs("bus name %q must contain at least one '.'", name)
	}
	for _, segment := range strings.Split(name, ".") {
		if segment == "" {
			return dbuserr.NewInvalidArgs("bus name %q has an empty segment", name)
		}
		for i, c := range segment {
			if c == '-' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
				continue
			}
			if c >= '0' && c <= '9' && i > 0 {
				continue
			}
			return dbuserr.NewInvalidArgs("bus name %q contains an invalid character", name)
		}
	}
	return nil
}
