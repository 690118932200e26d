// Package grid serves lazily loaded, virtualized grids over HTTP.
//
// Each client opens a session and tells the server which range of rows it
// renders (the viewport), how rows are filtered and how they are sorted. The
// session keeps a reconciler bound to a shared backend (memory, a SQL table or
// an object storage listing) and answers every request with the update
// batches needed to bring the client in sync:
//
//	POST   /grid/sessions                   open a session
//	PUT    /grid/sessions/:id/viewport      {"start":0,"length":50}
//	PUT    /grid/sessions/:id/filter        {"filters":[{"column":"age","op":">=","value":30}]}
//	PUT    /grid/sessions/:id/sort          {"orders":[{"property":"name","direction":"desc"}]}
//	POST   /grid/sessions/:id/ack           {"update_id":3}
//	GET    /grid/sessions/:id/updates?wait=2s
//
// Responses are JSON unless the client accepts application/cbor, in which
// case the update is streamed as wire frames. Keys dropped from the viewport
// stay resolvable until the client acknowledges the update that dropped them.
package grid
