// Package store defines the persistence contract for crawled records and the
// read queries behind the reporting API. Implementations live in the
// memory, mongo and postgres subpackages; this package must not import
// database drivers.
package store
