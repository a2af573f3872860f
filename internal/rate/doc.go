// Package rate implements fixed-window attempt counters over Redis for the
// operations that mint or verify credentials.
//
// Windows are fixed, not sliding: a counter's TTL starts at the first hit in
// the window. The worst case at a window boundary is a burst of 2N attempts;
// that approximation is accepted for implementation simplicity and is part
// of the documented contract, not a bug.
package rate
