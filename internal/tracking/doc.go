// Package tracking follows single units across independently spike-sorted
// recording sessions.
//
// Responsibilities: template dissimilarity scoring, pairwise session matching
// (possible, best unilateral and Hungarian matches), multi-session graph
// construction, graph pruning and identity extraction.
// Key types: Tracker, PairMatch, Graph, IdentifiedUnit.
//
// Session data is read through SessionProvider; this package performs no
// file or database I/O of its own.
package tracking
