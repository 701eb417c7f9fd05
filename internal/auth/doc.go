// Package auth holds the credential types shared by the token store, the
// authorization flow and the token lifecycle manager.
//
// A Token is created by the authorization-code exchange or rehydrated from a
// token store, and is only ever replaced as a whole by a successful refresh.
// Every failure along those paths is reported as an *Error whose Kind makes
// the distinction between, say, a rejected refresh and a token that needs a
// fresh interactive login observable to callers:
//
//	if errors.Is(err, auth.ErrReauthorizationRequired) {
//		// run the authorization flow again
//	}
package auth
