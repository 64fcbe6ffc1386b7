// Package version holds the release version of the metrics builder.
package version

// Current is the released version, without a leading "v".
const Current = "0.1.0"
