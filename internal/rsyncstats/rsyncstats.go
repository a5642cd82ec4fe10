// Package rsyncstats holds the transfer-statistics payload exchanged at
// the end of a session (spec §4.10 "Generator Role", the final
// read/written/size goodbye triple from rsync/main.c's report()).
package rsyncstats

// TransferStats is the statistics triple the generator side sends and
// the receiver side logs before the final NDX_DONE goodbye.
type TransferStats struct {
	Read    int64 // total bytes read from the network connection
	Written int64 // total bytes written to the network connection
	Size    int64 // total size of the transferred files

	// FlistBuildtimeMs and FlistXfertimeMs are additional timings sent
	// under protocol >= 29, milliseconds spent building and
	// transmitting the file list respectively.
	FlistBuildtimeMs int64
	FlistXfertimeMs  int64
	HaveFlistTimes   bool
}
