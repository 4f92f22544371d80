// Package main hosts the ratings crawler CLI.
//
// Architecture overview:
//   - Discovery: the popular-members listing is walked until a batch worth of
//     unseen usernames is found.
//   - Batches: each username becomes one task on a bounded worker pool. A task
//     walks the user's rating pages through the resilient fetcher (rate limit,
//     in-flight cap, full-jitter retries), scrapes them with goquery, resolves
//     the user's surrogate ID and stages new films with the identity allocator.
//   - Merge and persist: results are merged in completion order into the
//     cumulative dataset, which is saved after every batch through the selected
//     gateway (CSV tables on local disk, GCS, MinIO or memory; or Postgres).
//   - Fanout: a batch summary is published to Pub/Sub when a topic is set.
//   - Ops: an optional chi server exposes /healthz, /readyz, /metrics and
//     /v1/run while a command runs.
//
// Quick checklist:
//   - Configure via a YAML file (--config) or RATINGS_* env vars, e.g.
//     RATINGS_STORAGE_BACKEND=postgres RATINGS_STORAGE_POSTGRES_DSN=...
//   - Batch run: ratingscrawler batch --batches 2 --size 10 --mode continue
//   - One user: ratingscrawler user alice
//   - SIGINT/SIGTERM cancel the run; the last completed batch stays persisted.
package main
