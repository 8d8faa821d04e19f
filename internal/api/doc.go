// Package api hosts the reporting HTTP server. Notable routes:
//   - GET /healthz and /readyz for probes; readyz pings the store.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/freelancers, /api/services and /api/reviews, paged with
//     page and limit and wrapped in a {"data", "meta"} envelope.
//   - GET /api/countries, /api/skills and /api/sources as plain arrays.
//   - GET /api/stats for aggregates over the filtered freelancers.
package api
