// Package bagfile re-records emitted records to a bag file, one JSON
// Lines envelope per line.
//
// A schema envelope is written the first time each type variant appears,
// before that variant's first message, so any writes of the same bag read
// back with full descriptors. The sink appends by default; an existing
// bag grows and its earlier schema lines stay valid. The file is opened
// lazily on the first write and flushed every commit interval, with an
// optional fsync per commit.
package bagfile
