package remote

import "fmt"

// AuthError is returned when the remote endpoint rejects the credentials.
// The message enumerates the likely causes so the end user can self-service.
type AuthError struct {
	URL      string
	Database string
	Username string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf(
		"authentication failed for %s (db %q, user %q): verify that the API key is valid and not expired, "+
			"the username is correct, and the database name is correct; regenerate the API key if needed",
		e.URL, e.Database, e.Username,
	)
}

// CallError wraps any other remote-side failure, carrying the remote message.
type CallError struct {
	Model  string
	Method string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("remote call %s.%s failed: %v", e.Model, e.Method, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// SafetyError is returned by the update path when the remote record's
// reference proves the record was not created by this engine. It is fatal for
// that product and never auto-resolved.
type SafetyError struct {
	ProductName     string
	RemoteReference string
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf(
		"safety check failed for %q: remote record reference %q was not written by this sync engine, "+
			"refusing to update to avoid modifying the customer's own products",
		e.ProductName, e.RemoteReference,
	)
}
