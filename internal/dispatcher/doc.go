// Package dispatcher transfers materialized artifacts to an object store
// with a fixed number of workers.
//
// A single producer feeds an unbuffered queue; exactly W workers drain it,
// so at most W transfers are in flight at any instant. Every artifact
// yields exactly one UploadResult on the results channel, whether it was
// transferred, failed, or never started. The channel is closed once every
// worker has returned.
//
// Transfers already handed to a worker run to completion even if the
// caller's context is canceled; artifacts still waiting in the queue are
// reported as failures carrying the cancellation cause. When too many
// consecutive transfers fail because the store cannot be reached, feeding
// stops and Run returns errors.ErrStoreUnreachable.
package dispatcher
