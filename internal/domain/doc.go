// Package domain holds the post, user and connection records shared by the
// conversation engine, the lifecycle manager, the introduction broker and the
// expiry sweeper, together with the error taxonomy they report.
package domain
