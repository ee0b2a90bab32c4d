package email

// ParsedMessage holds the readable bodies of a MIME message.
type ParsedMessage struct {
	TextBody string
	HTMLBody string
}
