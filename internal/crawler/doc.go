// Package crawler runs the per-site crawl loop. A Runner plans one traversal
// cursor per selected site and runs an Engine for each concurrently. An
// Engine fetches listing pages one at a time, dispatches profile enrichment
// under a bounded semaphore and persists results through a RecordSink.
// A shared Budget caps dispatched candidates across engines.
package crawler
