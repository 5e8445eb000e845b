// Package clientauth interprets the auth artifacts a browser lands with after
// a magic link, a password recovery mail, an email confirmation, an OAuth
// failure or the OAuth bridge hand-off, and holds the client auth state.
//
// Classify turns the URL into one Event. Interpreter dispatches each URL
// once, rewrites history so a reload does not replay it and drops results
// of network calls that complete after the caller went away. Machine is the
// explicit auth state: an immutable Snapshot moved only by named events.
package clientauth
