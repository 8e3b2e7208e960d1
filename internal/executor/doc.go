/*
Package executor sends API calls to a single JSON API host and classifies
the responses.

# Overview

An Engine owns one Session: the cookie set replayed on every request and a
transport limited to one HTTP/1.1 connection to the endpoint. Execute is
serialized by a mutex.

# Requests

Request building (request.go):
  - GET encodes parameters into the query string, other verbs send them as
    a JSON body
  - Raw -G pairs are appended to the query for every verb
  - EXEC posts the legacy multipart form (OMEGA_ENCODING, OMEGA_API_PARAMS,
    OMEGA_CREDENTIALS, -P fields and -F files)
  - Credentials are sent in the Authentication header

# Retries

A request is sent at most MaxAttempts times. A dropped connection (reset,
broken pipe, EOF) closes the idle connection and dials again. Any other
transport error discards the transport and builds a fresh one. When every
attempt fails Execute returns a clierr.KindConnection error.

# Classification

Responses are classified in order (classify.go):
  - Non-2xx status: failure carrying the server reason
  - Non-JSON content: success with the raw body as text
  - Undecodable JSON: clierr.KindDecode error
  - Envelope with result=false: failure carrying the reason
  - Anything else: success with the envelope data

# Example Usage

	ep, err := types.ParseEndpoint("https://api.example.com/v1")
	if err != nil {
		return err
	}

	engine, err := executor.New(ep, &types.Credentials{Token: token})
	if err != nil {
		return err
	}
	defer engine.Close()

	tree := params.NewTree()
	_ = tree.Assign("name=widget")

	result, err := engine.Execute(ctx, &types.ApiCall{
		Method: types.MethodPost,
		Path:   "/widgets",
		Params: tree,
	})
	if err != nil {
		return err
	}
	if !result.OK() {
		fmt.Println(result.Failure)
	}
*/
package executor
