// Package batch runs independent Notion requests in parallel with a bounded
// number of requests in flight.
//
// Example usage:
//
//	pages, err := batch.Map(ctx, pageIDs, batch.DefaultConfig(),
//		func(ctx context.Context, id string) (*recordmap.RecordMap, error) {
//			return client.GetPage(ctx, id, &opts)
//		})
//
// Map and ForEach:
//   - Run at most MaxConcurrency calls at once (default 4)
//   - Return results in input order, not completion order
//   - Stop scheduling new work after the first failure and cancel the
//     context handed to calls still running
//   - Return the first error exactly as fn returned it; no partial results
//
// Callers that want best-effort behaviour swallow errors inside fn.
package batch
