// Package auth implements the request authentication gate.
//
// The gate sits in front of every handler. Requests to public paths pass
// through untouched. All other requests must carry a credential, either a
// token in the browser session or a Bearer token in the Authorization
// header, with the session taking precedence. The credential is verified
// by the jwt package and the resulting Identity is attached to the request
// context. Requests without a usable credential are rejected with 400, and
// requests with an invalid token with 401. Rejected requests never reach
// the downstream handler.
package auth
