package dnsval

import (
	"expvar"
	"fmt"
	"sync"
)

// varsMu serializes get-or-create access to the expvar registry: expvar
// itself has no atomic "get or create" operation, and Publish panics if
// two callers race to create the same name (e.g. two transports built
// concurrently with the same id).
var varsMu sync.Mutex

// getVarInt returns an *expvar.Int for the given client/transport id and
// counter name, creating it on first use.
func getVarInt(base string, id string, name string) *expvar.Int {
	varsMu.Lock()
	defer varsMu.Unlock()
	fullname := fmt.Sprintf("dnsval.%s.%s.%s", base, id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Int)
	}
	return expvar.NewInt(fullname)
}

// getVarMap returns an *expvar.Map for the given client/transport id and
// counter name, creating it on first use.
func getVarMap(base string, id string, name string) *expvar.Map {
	varsMu.Lock()
	defer varsMu.Unlock()
	fullname := fmt.Sprintf("dnsval.%s.%s.%s", base, id, name)
	if v := expvar.Get(fullname); v != nil {
		return v.(*expvar.Map)
	}
	return expvar.NewMap(fullname)
}
