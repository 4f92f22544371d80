// Package store declares the persistence gateway for rating datasets and
// provides the CSV implementation over a crawler.BlobStore. Database-backed
// gateways live in other packages; this package must not import database
// drivers.
package store
