// Package output renders run summaries and statistics reports and manages
// the destination they are written to.
package output
