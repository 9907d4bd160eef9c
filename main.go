// Package main is the hansard CLI entrypoint. All execution is deferred to
// the Cobra commands in ./cmd.
//
// Pipeline overview:
//   - crawl: the listing is paginated with a shared, rate-limited Colly fetcher; links ending in
//     .pdf become candidates with a recovered date and a canonical hansard_YYYYMMDD_<period>.pdf name.
//   - download: a tracker combines "file in storage" and "record for URL" into skip or fetch
//     decisions, so reruns are idempotent and heal lost files or lost records.
//   - historical: local transcripts in the date range are extracted by a bounded worker pool and
//     committed one at a time to SQLite, followed by a quality report, a run summary with
//     recommendations, flat metric lines, and an optional Pub/Sub run-completed event.
//   - schedule: the historical batch on a cron expression over a lookback window.
//
// Configuration comes from config.yaml, .env and HANSARD_* variables; see internal/config.
package main

import (
	"os"

	"github.com/JakeFAU/hansard-crawler/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
