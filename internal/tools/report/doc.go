// Package report provides the tools the analysis agent uses to gather
// experiment context: manual search, subject lookup, and log summaries.
package report
