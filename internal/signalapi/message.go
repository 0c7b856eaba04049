package signalapi

// Message is one inbound record from the receive endpoint.
type Message struct {
	Envelope Envelope `json:"envelope"`
}

// Envelope wraps either textual content, attachments, or a non-content
// event such as a typing indicator (in which case DataMessage is nil).
type Envelope struct {
	Source       string       `json:"source"`
	SourceNumber string       `json:"sourceNumber"`
	SourceName   string       `json:"sourceName"`
	DataMessage  *DataMessage `json:"dataMessage"`
}

// Sender returns the best available sender identifier, or "" when the
// envelope carries none.
func (e Envelope) Sender() string {
	switch {
	case e.Source != "":
		return e.Source
	case e.SourceNumber != "":
		return e.SourceNumber
	default:
		return e.SourceName
	}
}

// DataMessage is the content part of an envelope.
type DataMessage struct {
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment references stored attachment bytes by identifier.
type Attachment struct {
	ID          string `json:"id"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
}
