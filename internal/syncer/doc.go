// Package syncer implements the sync engine run on every region ENTER.
//
// OnEnter performs, under a lock for the quantized location key:
//
//  1. fetch the nearby record set
//  2. effectiveHash = server hash, or StructuralHash(records) when absent
//  3. compare with the stored fingerprint for the key
//  4. on mismatch, upsert the records and then store the new fingerprint
//
// Identical results at the same quantized location never write twice. A crash
// between steps 4a and 4b only causes the same records to be applied again on
// the next ENTER.
//
// Fetch errors wrap ErrFetchFailed and store errors wrap ErrStoreFailed.
package syncer
