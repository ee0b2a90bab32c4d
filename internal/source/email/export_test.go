package email

// Test helpers shared with the external email_test package, which can import
// retrieval without creating an import cycle.
var (
	SilentServer  = silentServer
	SilentAccount = silentAccount
	RequireHangup = requireHangup
	TestDialer    = testDialer
)
