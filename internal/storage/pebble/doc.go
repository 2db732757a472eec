// Package pebblestore is an embedded document store on top of Pebble.
//
// Documents are kept as zstd-compressed JSON envelopes
// {"id","metadata","document"} under db/<database>/doc/<id>. Documents with
// an "@expires" metadata entry are also indexed under
// db/<database>/exp/<unix nanos>/<id> so that Purge can delete them in
// expiry order without reading document bodies.
//
// A Session stages documents in memory and Commit writes them with a single
// Pebble batch.
package pebblestore
