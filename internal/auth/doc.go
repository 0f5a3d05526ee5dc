// Package auth attaches bearer tokens to key-value requests. Tokens are either
// supplied up front or obtained from an OAuth2 token endpoint with the client
// credentials or password grant.
package auth
