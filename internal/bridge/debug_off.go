//go:build !nockdebug

package bridge

// The debug echo of raised errors is compiled out of hot call paths
// unless the nockdebug tag is set.
const debugEnabled = false

func debugLog(o origin, msg string) {}
