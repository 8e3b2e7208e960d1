/*
Package types defines the data shared by the request engine, the shell and
the renderer.

# Endpoint

An Endpoint is the single host every call of a run goes to. ParseEndpoint
accepts a service URL with or without a scheme; a bare host implies https.

	ep, err := types.ParseEndpoint("api.example.com:8443/v1")
	// ep.Scheme() == "https", ep.Host() == "api.example.com:8443",
	// ep.BasePath == "/v1/"

# Calls and results

ApiCall describes one invocation: the verb, the API path relative to the
endpoint base path, the parameter tree and the per-call options. The engine
never mutates it.

ApiResult is the classified outcome. A failure reported by the server
(non-2xx status or "result": false) is carried in Failure; otherwise the
payload is either Data (decoded JSON) or Text (raw or non-JSON content).

# Credentials

Credentials are a username/password pair or a token, never both. A nil
*Credentials means anonymous calls.
*/
package types
