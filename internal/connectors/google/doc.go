// Package google provides shared infrastructure for the Gmail connector:
// the TokenSource adapter over driven.TokenProvider, the service factory,
// error mapping onto the sync error taxonomy and rate limiting.
//
//	ts := google.NewTokenSource(ctx, tokenProvider)
//	svc, err := google.NewGmailService(ctx, ts)
//
// The connector needs the https://www.googleapis.com/auth/gmail.readonly scope.
package google
