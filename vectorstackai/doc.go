// Package vectorstackai is the official Go client for the VectorStack AI embedding and vector search service.
//
// A Client generates embeddings and manages indexes. Client.Index opens an IndexConnection that writes,
// searches and deletes vectors in one index, validating each request against the index descriptor before it
// is sent.
//
// Every call is retried on rate limiting, service unavailability and timeouts with exponential backoff and
// jitter. Failures from the service are returned as *APIError values whose Kind can be matched with errors.Is:
//
//	_, err := vs.DescribeIndex(ctx, "my-index")
//	if errors.Is(err, vectorstackai.KindNotFound) {
//	  // create it
//	}
//
// Requests rejected locally wrap ErrInvalidArgument and never reach the network.
package vectorstackai
