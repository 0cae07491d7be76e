// Package server exposes the running engine to local tools.
//
// Status serves three endpoints:
//
//	/ws       session events as JSON text messages, one per event
//	/status   a JSON snapshot of phase, peer, audio streams and video stats
//	/metrics  Prometheus metrics
//
// Every websocket client first receives a "status" message carrying the
// current phase, then one message per bus event. A client that cannot keep
// up is disconnected rather than allowed to stall the others.
//
// Client is the matching consumer used by `carlinkd monitor`.
//
// # Usage Example
//
//	st := server.New(server.Config{Addr: ":8470"}, engine)
//	go st.Start(ctx)
//
//	c := server.NewClient("127.0.0.1:8470")
//	events, err := c.Watch(ctx)
package server
