// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

/*
Package queue is the durable import queue and its worker.

Messages are stored in BadgerDB under queue:entry:<id>, where the id starts
with the zero padded enqueue time so iteration order is FIFO order. Claim
leases an entry to a holder. Ack deletes it. Nack releases the lease and
delays the next delivery exponentially (1m, 2m, 4m, capped at 10m); after
max_attempts the entry moves to queue:dead:<id>. Defer also releases the
lease but waits defer_delay and leaves the attempt count alone.

Message types:

	traction_rec, salesforce            import one working directory
	traction_rec_sync, salesforce_sync  same, removing rows absent from the batch
	cleanup                             rotate the pipeline's backup directories

The Worker drains the queue. Import messages go through the pipeline
importer's ImportOne, so each message takes and releases the pipeline lock
around its single directory. Locked and not idle outcomes are deferred,
failed ones are retried; disabled and nothing to import are acknowledged.
Invalid messages are dropped, including a directory that is not a working
directory of its pipeline.
*/
package queue
