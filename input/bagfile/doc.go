// Package bagfile reads recorded bags: JSON Lines streams of schema and
// message envelopes, the same format the bagfile sink writes.
//
// # Reading Order
//
// A source reads its configured paths in listed order; a directory path
// expands to the directory's .jsonl files sorted by name. Opening is lazy:
// the first EstimatedTotal or Next call resolves the file list and pre-scans
// regular files, counting message lines per stream so the scan can honor
// negative index bounds and stop early once every announced stream is
// capped. A path that cannot be counted makes the whole estimate unknown.
//
// Schema lines feed the source's descriptor table and are never returned as
// records. A malformed line is reported once and skipped; an unreadable file
// is reported once and the source moves on to the next one.
//
// # Watch Mode
//
// With watch enabled the source takes exactly one directory: it drains the
// bags already present, then blocks until new .jsonl files appear, reading
// each as it arrives. Writers should materialize bags atomically (write to a
// temporary name, then rename into the directory) so a bag is never read
// half-written. A watching source reports an unknown total, cannot stop
// early, and ends its stream only on Stop, cancellation, or after the
// configured idle timeout passes without a new bag.
package bagfile
