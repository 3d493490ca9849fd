/*
Package auth carries caller identity and permission bits into the core.

Authentication and token validation happen at the API boundary, outside
this repository's scope. The core receives an auth.Context — organization
id, optional user id, permission bit set — and rejects operations the
caller is not authorized for. It never performs authentication itself.
*/
package auth
