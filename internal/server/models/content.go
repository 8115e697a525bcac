package models

// Content is one inbound message as the relay sees it. Text carries the
// message text or caption. MessageRef is the platform's id for the original
// message; when non-zero the transport copies the message verbatim, which is
// how attachments travel without the relay ever holding their bytes.
type Content struct {
	Text       string
	MessageRef int
	Attachment bool
}

// IsText reports whether c is a plain text message.
func (c Content) IsText() bool {
	return !c.Attachment && c.Text != ""
}
