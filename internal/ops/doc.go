// Package ops serves the optional operator HTTP endpoints: liveness,
// a JSON status document and net/http/pprof.
package ops
