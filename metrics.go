package dnsval

import "expvar"

// transportMetrics tracks per-transport counters, exported via expvar under
// dnsval.transport.<id>.*. Modeled on the teacher's ListenerMetrics, adapted
// from listener-side (accept/serve) counters to client-side (query/response)
// ones since this package only dials out.
type transportMetrics struct {
	query    *expvar.Int
	response *expvar.Map
	err      *expvar.Map
}

func newTransportMetrics(id string) *transportMetrics {
	return &transportMetrics{
		query:    getVarInt("transport", id, "query"),
		response: getVarMap("transport", id, "response"),
		err:      getVarMap("transport", id, "error"),
	}
}
