// Package crawler defines the collaborator interfaces and shared types used
// by the ratings pipeline: fetchers, page scrapers, blob stores, publishers,
// clocks and ID generators.
package crawler
