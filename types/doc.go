// Package types holds payload values that travel inside query results and
// parameters: record ids and datetimes.
//
// Both are read from the intermediate codec.Value form and written back to
// it, so they can be bound as parameters or picked out of decoded results.
// A record id key arrives either untagged (text, integer, array, object) or
// as a one-field object naming its variant:
//
//	{"Uuid": "0190c4a4-..."}  -> UUIDKey
//	{"Number": 42}            -> NumberKey
//	{"region": "eu"}          -> ObjectKey (unknown tag)
package types
