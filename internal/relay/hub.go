// Package relay is the rendezvous server of a call: it forwards every text
// frame received from one WebSocket client to every other client of the same
// room, without looking inside.
package relay

import (
	"context"

	"github.com/1ureka/rtcall/internal/util"
)

// sendQueue bounds the frames buffered for one slow client before it is dropped.
const sendQueue = 64

// peer is one connected client as seen by the Hub.
type peer struct {
	id   string
	room string
	send chan []byte
}

func newPeer(id, room string) *peer {
	return &peer{id: id, room: room, send: make(chan []byte, sendQueue)}
}

type frame struct {
	from *peer
	data []byte
}

// Hub owns the room membership. All mutations happen on the Run goroutine.
type Hub struct {
	rooms map[string]map[*peer]struct{}

	register   chan *peer
	unregister chan *peer
	forward    chan frame
	sizes      chan chan map[string]int

	done chan struct{}
	log  util.Scope
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*peer]struct{}),
		register:   make(chan *peer),
		unregister: make(chan *peer),
		forward:    make(chan frame, 256),
		sizes:      make(chan chan map[string]int),
		done:       make(chan struct{}),
		log:        util.Scope("relay"),
	}
}

// Run processes membership changes and frames until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, members := range h.rooms {
				for p := range members {
					close(p.send)
				}
			}
			h.rooms = nil
			return

		case p := <-h.register:
			members, ok := h.rooms[p.room]
			if !ok {
				members = make(map[*peer]struct{})
				h.rooms[p.room] = members
			}
			members[p] = struct{}{}
			h.log.Infof("client %s joined room %q (%d present)", p.id, p.room, len(members))

		case p := <-h.unregister:
			h.remove(p)

		case f := <-h.forward:
			for p := range h.rooms[f.from.room] {
				if p == f.from {
					continue
				}
				select {
				case p.send <- f.data:
				default:
					h.log.Warnf("client %s is not keeping up, dropping it", p.id)
					h.remove(p)
				}
			}

		case reply := <-h.sizes:
			out := make(map[string]int, len(h.rooms))
			for room, members := range h.rooms {
				out[room] = len(members)
			}
			reply <- out
		}
	}
}

// remove deletes p from its room and closes its send queue. Removing an
// absent peer is a no-op.
func (h *Hub) remove(p *peer) {
	members := h.rooms[p.room]
	if _, ok := members[p]; !ok {
		return
	}
	delete(members, p)
	close(p.send)
	if len(members) == 0 {
		delete(h.rooms, p.room)
	}
	h.log.Infof("client %s left room %q", p.id, p.room)
}

// join adds p to its room. It reports false if the hub has stopped.
func (h *Hub) join(p *peer) bool {
	select {
	case h.register <- p:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(p *peer) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}

func (h *Hub) relay(from *peer, data []byte) {
	select {
	case h.forward <- frame{from: from, data: data}:
	case <-h.done:
	}
}

// Rooms returns the number of clients per occupied room.
func (h *Hub) Rooms() map[string]int {
	reply := make(chan map[string]int, 1)
	select {
	case h.sizes <- reply:
		return <-reply
	case <-h.done:
		return nil
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
