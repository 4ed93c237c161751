package interfaces

import "context"

// -----------------------------------------------------------------------------
// INetworkManager defines the contract for HTTP requests.
// -----------------------------------------------------------------------------

type INetworkManager interface {

	// -----------------------------------------------------------------------------

	// Get performs a GET request to the specified URL with parameters.
	// The context aborts an in-flight request. Returns the response body as
	// bytes or an error; there is no internal retry.
	Get(ctx context.Context, url string, params map[string]string) ([]byte, error)
}
