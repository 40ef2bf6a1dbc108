// Package sources fetches and normalizes catalog documents from third-party
// source endpoints.
//
// Sources do not agree on where their catalog lives. Given a base URL, the
// SourceResolver walks an ordered list of path suffixes ("", "/apps.json",
// "/repo.json", ...) and accepts the first response that parses as JSON and
// exposes an "apps" field. Each attempt goes through a TimeoutFetcher, which
// bounds the request with its own deadline and tolerates stray bytes around
// an otherwise valid JSON body.
//
// Failures never escape the resolver: a source whose suffixes are all
// exhausted is reported as nil and simply left out of the aggregate.
package sources
