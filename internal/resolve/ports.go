package resolve

import "fmt"

// portAllocator hands out control-plane ports for one sequence (thrift or
// grpc) within a single resolution run. Default assignments take the next
// unused value at or above a monotonically advancing counter; explicit
// assignments are honored and push the counter past themselves so later
// defaults never collide.
type portAllocator struct {
	counter int
	used    map[int]struct{}
}

func newPortAllocator(base int) *portAllocator {
	return &portAllocator{counter: base, used: make(map[int]struct{})}
}

// next allocates the first unused port >= the counter.
func (a *portAllocator) next() int {
	p := a.counter
	for {
		if _, taken := a.used[p]; !taken {
			break
		}
		p++
	}
	a.used[p] = struct{}{}
	a.counter = p + 1
	return p
}

// claim reserves an explicitly requested port. The counter advances to
// max(counter+1, port).
func (a *portAllocator) claim(port int) error {
	if _, taken := a.used[port]; taken {
		return fmt.Errorf("port %d requested twice", port)
	}
	a.used[port] = struct{}{}
	if port > a.counter {
		a.counter = port
	} else {
		a.counter++
	}
	return nil
}
