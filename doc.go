// Package s3batch generates synthetic JSON documents and uploads them to an
// object store with bounded concurrency.
//
// A Runner drives one batch through a fixed sequence of states:
//
//	Idle → Generating → Materializing → Uploading → Summarizing → Done
//
// Any state before Summarizing may end in Failed. Credential, bucket,
// key escrow and local write failures are fatal and stop the run before
// any upload is attempted; individual transfer failures are recorded in the
// summary and never abort the batch. Once uploading has started, only an
// unreachable object store is fatal.
//
// Basic usage:
//
//	client, err := s3.New(ctx, s3.WithRegion("eu-central-1"))
//	if err != nil {
//	    return err
//	}
//	runner, err := s3batch.NewRunner(client, billy.NewHostFS(), s3batch.Config{
//	    Count:     3000,
//	    TotalSize: 512 << 20,
//	    Bucket:    "json-batch-20240101-000000",
//	    Workers:   8,
//	})
//	if err != nil {
//	    return err
//	}
//	summary, err := runner.Run(ctx)
package s3batch
