// Package pool
// Author: momentics <momentics@gmail.com>
//
// Recycled fixed-size byte buffers for the transfer engine's socket reads.
// Keeps per-read allocations off the hot path without pinning memory per
// transfer.
package pool
