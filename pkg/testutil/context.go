package testutil

import "net/http"

// WithBearer sets the Authorization header the identity transport would send.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// WithRequestID sets the correlation header.
func WithRequestID(req *http.Request, id string) *http.Request {
	req.Header.Set("X-Request-ID", id)
	return req
}
