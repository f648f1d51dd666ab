// Command idebridge runs the IDE bridge with a line-oriented host on stdio.
//
// Tool invocations and connection changes are printed to stdout as JSON lines,
// one object per event. Lines read from stdin complete calls or push notifications:
//
//	{"type":"respond","request_id":"<id>","result":[]}
//	{"type":"notify","payload":{"jsonrpc":"2.0","method":"selection_changed","params":{}}}
//
// Logs go to stderr.
package main
