// Package pebblestore implements store.IStore on top of a Pebble database.
//
// Every object is written as one record under the prefix "o/" with a synced write,
// so a peer that restarts comes back with its certificates and grant history intact.
package pebblestore
