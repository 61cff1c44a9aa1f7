package domain

import (
	"sync"
	"time"

	"github.com/castrelay/castrelay/internal/media"
)

// RoomState is the per-room lifecycle state.
type RoomState int

const (
	// RoomEmpty: the room exists with no producer-side transport yet.
	RoomEmpty RoomState = iota
	// RoomAwaitingProducer: a broadcaster is bound and a producer transport
	// exists, but produce has not completed.
	RoomAwaitingProducer
	// RoomLive: a producer handle is set; viewers may consume.
	RoomLive
	// RoomClosed: terminal. Every operation against a closed room fails.
	RoomClosed
)

func (s RoomState) String() string {
	switch s {
	case RoomEmpty:
		return "empty"
	case RoomAwaitingProducer:
		return "awaiting_producer"
	case RoomLive:
		return "live"
	case RoomClosed:
		return "closed"
	}
	return "unknown"
}

// Room is one isolated broadcast session: a single broadcaster, a bounded
// set of viewers, and the media resources scoped to it. All mutating methods
// are check-and-mutate under the room's own lock, so concurrent handlers for
// the same room cannot both pass a capacity or occupancy check.
type Room struct {
	id         string
	createdAt  time.Time
	maxViewers int

	mu              sync.Mutex
	state           RoomState
	broadcasterID   string
	broadcasterName string
	viewers         map[string]string // connID -> display name
	router          media.Router
	producer        media.Producer
	transports      map[string]*roomTransport
	consumers       map[string]media.Consumer
}

type roomTransport struct {
	transport media.Transport
	ownerID   string
}

// NewRoom creates an empty room. maxViewers bounds the viewer set.
func NewRoom(id string, maxViewers int) *Room {
	return &Room{
		id:         id,
		createdAt:  time.Now(),
		maxViewers: maxViewers,
		state:      RoomEmpty,
		viewers:    make(map[string]string),
		transports: make(map[string]*roomTransport),
		consumers:  make(map[string]media.Consumer),
	}
}

func (r *Room) ID() string           { return r.id }
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// State returns the current lifecycle state.
func (r *Room) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsLive reports whether a producer handle exists.
func (r *Room) IsLive() bool {
	return r.State() == RoomLive
}

// BindBroadcaster claims the broadcaster slot. Idempotent for the same
// connection; any other connection gets ErrRoomOccupied while the slot is
// held.
func (r *Room) BindBroadcaster(connID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RoomClosed {
		return ErrRoomNotFound
	}
	if r.broadcasterID != "" && r.broadcasterID != connID {
		return ErrRoomOccupied
	}
	r.broadcasterID = connID
	r.broadcasterName = name
	return nil
}

// Broadcaster returns the bound broadcaster connection id, or "".
func (r *Room) Broadcaster() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcasterID
}

// BroadcasterName returns the broadcaster's display name.
func (r *Room) BroadcasterName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcasterName
}

// SetRouter installs the room's media router. Returns ErrRoomNotFound if the
// room closed while the router was being created; the caller then owns the
// router and must close it.
func (r *Room) SetRouter(router media.Router) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RoomClosed {
		return ErrRoomNotFound
	}
	r.router = router
	return nil
}

// Router returns the room's media router, or nil.
func (r *Room) Router() media.Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.router
}

// AddViewer admits a connection as viewer. The capacity check and the insert
// are one critical section: two simultaneous joins cannot both observe a
// free slot. Re-adding an existing viewer is a no-op.
func (r *Room) AddViewer(connID, name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RoomClosed {
		return 0, ErrRoomNotFound
	}
	if _, ok := r.viewers[connID]; ok {
		return len(r.viewers), nil
	}
	if len(r.viewers) >= r.maxViewers {
		return len(r.viewers), ErrRoomFull
	}
	r.viewers[connID] = name
	return len(r.viewers), nil
}

// RemoveViewer detaches a viewer. Returns the remaining count, the removed
// viewer's display name, and whether the connection was a viewer at all.
func (r *Room) RemoveViewer(connID string) (int, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.viewers[connID]
	if !ok {
		return len(r.viewers), "", false
	}
	delete(r.viewers, connID)
	return len(r.viewers), name, true
}

// ViewerCount returns the number of admitted viewers.
func (r *Room) ViewerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.viewers)
}

// IsViewer reports whether the connection is an admitted viewer.
func (r *Room) IsViewer(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.viewers[connID]
	return ok
}

// Members returns every member connection id, broadcaster included.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersLocked()
}

func (r *Room) membersLocked() []string {
	members := make([]string, 0, len(r.viewers)+1)
	if r.broadcasterID != "" {
		members = append(members, r.broadcasterID)
	}
	for id := range r.viewers {
		members = append(members, id)
	}
	return members
}

// HasMember reports whether the connection is the broadcaster or a viewer.
func (r *Room) HasMember(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if connID == r.broadcasterID && connID != "" {
		return true
	}
	_, ok := r.viewers[connID]
	return ok
}

// AttachTransport commits a created transport to the room. A producer-side
// transport moves an empty room to awaiting-producer. Fails with
// ErrRoomNotFound if the room closed while the engine call was in flight;
// the caller must then release the transport.
func (r *Room) AttachTransport(t media.Transport, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RoomClosed {
		return ErrRoomNotFound
	}
	r.transports[t.ID()] = &roomTransport{transport: t, ownerID: ownerID}
	if ownerID == r.broadcasterID && r.state == RoomEmpty {
		r.state = RoomAwaitingProducer
	}
	return nil
}

// Transport returns a transport and its owning connection id.
func (r *Room) Transport(transportID string) (media.Transport, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.transports[transportID]
	if !ok {
		return nil, "", false
	}
	return rt.transport, rt.ownerID, true
}

// CommitProducer installs the producer handle and moves the room live.
// A second producer is rejected, never queued. ErrRoomNotFound means the
// room closed while produce was in flight; the caller must release the
// handle and must not retry.
func (r *Room) CommitProducer(p media.Producer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RoomClosed {
		return ErrRoomNotFound
	}
	if r.producer != nil {
		return ErrRoomOccupied
	}
	r.producer = p
	r.state = RoomLive
	return nil
}

// Producer returns the live producer handle, or nil.
func (r *Room) Producer() media.Producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.producer
}

// AttachConsumer commits a created consumer to the room.
func (r *Room) AttachConsumer(c media.Consumer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RoomClosed {
		return ErrRoomNotFound
	}
	r.consumers[c.ID()] = c
	return nil
}

// Consumer looks up a consumer by id.
func (r *Room) Consumer(consumerID string) (media.Consumer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consumers[consumerID]
	return c, ok
}

// RoomResources holds everything a closed room owned, handed to the caller
// for release outside the room lock.
type RoomResources struct {
	Router     media.Router
	Producer   media.Producer
	Transports []media.Transport
	Consumers  []media.Consumer
	Members    []string
}

// Close transitions the room to its terminal state and strips it of its
// media resources. The producer handle is invalidated before the resources
// are handed back, so an operation racing teardown can never commit against
// a closing room. Idempotent: a second call returns ok=false and nothing to
// release.
func (r *Room) Close() (RoomResources, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RoomClosed {
		return RoomResources{}, false
	}
	res := RoomResources{
		Router:   r.router,
		Producer: r.producer,
		Members:  r.membersLocked(),
	}
	for _, rt := range r.transports {
		res.Transports = append(res.Transports, rt.transport)
	}
	for _, c := range r.consumers {
		res.Consumers = append(res.Consumers, c)
	}
	r.state = RoomClosed
	r.producer = nil
	r.router = nil
	r.transports = map[string]*roomTransport{}
	r.consumers = map[string]media.Consumer{}
	return res, true
}

// TransportIDs returns the ids of every attached transport.
func (r *Room) TransportIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.transports))
	for id := range r.transports {
		ids = append(ids, id)
	}
	return ids
}

// ConsumerIDs returns the ids of every attached consumer.
func (r *Room) ConsumerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.consumers))
	for id := range r.consumers {
		ids = append(ids, id)
	}
	return ids
}

// RoomStatus is the read-only view served by the status endpoint.
type RoomStatus struct {
	RoomID          string  `json:"roomId"`
	BroadcasterName string  `json:"broadcasterName"`
	ViewerCount     int     `json:"viewerCount"`
	IsLive          bool    `json:"isLive"`
	UptimeSeconds   float64 `json:"uptimeSeconds"`
}

// Status returns a point-in-time snapshot of the room.
func (r *Room) Status() RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomStatus{
		RoomID:          r.id,
		BroadcasterName: r.broadcasterName,
		ViewerCount:     len(r.viewers),
		IsLive:          r.state == RoomLive,
		UptimeSeconds:   time.Since(r.createdAt).Seconds(),
	}
}
