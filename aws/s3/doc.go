// Package s3 implements the batch object store on Amazon S3 and
// S3-compatible endpoints using the AWS SDK for Go v2.
//
// The Client validates credentials with a cheap ListBuckets call, creates
// the destination bucket idempotently and stores each artifact with a
// single PutObject request. SDK errors are classified into the sentinels of
// the errors package so callers can tell connection failures, permission
// problems and throttling apart.
//
// Example:
//
//	client, err := s3.New(ctx,
//	    s3.WithRegion("eu-west-1"),
//	    s3.WithMaxRetries(5),
//	    s3.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.EnsureBucket(ctx, "json-batch-20260101-120000"); err != nil {
//	    return err
//	}
package s3
