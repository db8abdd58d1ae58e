// Package ratelimit throttles origins that produce consecutive authentication failures.
//
// A Limiter counts failures per origin. Once the count reaches the threshold, the origin is
// blocked for the block duration; every further failure while blocked extends the block.
// A success clears the origin. Blocks expire lazily: the first IsBlocked check after the
// block elapsed removes the entry, and a failure arriving after an elapsed block starts a
// fresh count.
//
// Usage in an authentication flow:
//
//	if limiter.IsBlocked(origin) {
//		return errTooManyAttempts
//	}
//	if !verify(credentials) {
//		limiter.RecordFailure(origin)
//		return errInvalidCredentials
//	}
//	limiter.RecordSuccess(origin)
//
// The state lives in process memory only.
package ratelimit
