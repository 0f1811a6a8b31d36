package peer

import (
	"net"
	"sync"
)

// Table maps connection ids to live connections. One mutex guards the map,
// the insertion order, and the id counter together so that id assignment
// and insertion are atomic. Ids start at 1, grow monotonically and are
// never reused. No Table operation touches the network.
type Table struct {
	mu    sync.Mutex
	next  int
	conns map[int]*Conn
	order []int
}

func NewTable() *Table {
	return &Table{conns: make(map[int]*Conn)}
}

// Register assigns the next id, inserts the record and returns it.
func (t *Table) Register(sock net.Conn, ip string, port int) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	c := &Conn{ID: t.next, Sock: sock, IP: ip, Port: port}
	t.conns[c.ID] = c
	t.order = append(t.order, c.ID)
	return c
}

func (t *Table) Lookup(id int) (*Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[id]
	return c, ok
}

// Remove deletes and returns the record, or reports false when the id is
// already gone. The caller owns closing the socket.
func (t *Table) Remove(id int) (*Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[id]
	if !ok {
		return nil, false
	}
	delete(t.conns, id)
	t.dropOrder(id)
	return c, true
}

// List returns the live connections in insertion order.
func (t *Table) List() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Info, 0, len(t.order))
	for _, id := range t.order {
		c := t.conns[id]
		out = append(out, Info{ID: c.ID, IP: c.IP, Port: c.Port})
	}
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// FindAddr reports whether some live connection already points at
// (ip, advertised port).
func (t *Table) FindAddr(ip string, port int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.conns {
		if c.IP == ip && c.Port == port {
			return true
		}
	}
	return false
}

// Drain removes every entry and returns them in insertion order. Used by
// shutdown so that teardown sees a consistent snapshot.
func (t *Table) Drain() []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Conn, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.conns[id])
	}
	t.conns = make(map[int]*Conn)
	t.order = nil
	return out
}

func (t *Table) dropOrder(id int) {
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}
