package models

import "time"

// RawMessage is the provider-shaped message an adapter hands to the
// normalizer. Adapters fill the envelope fields they can provide cheaply and
// stash everything provider-specific in Headers / ProviderLabels /
// ProviderFlags; interpretation happens in the normalizer, never downstream.
type RawMessage struct {
	ProviderMessageID string
	ProviderThreadID  string
	From              string
	To                []string
	CC                []string
	BCC               []string
	ReplyTo           []string
	Subject           string
	Date              time.Time
	InternalDate      time.Time
	BodyText          string
	BodyHTML          string
	Snippet           string
	RawSource         []byte
	// ProviderLabels are provider-native label ids (e.g. Gmail "UNREAD").
	ProviderLabels []string
	// ProviderFlags are provider-native flags (e.g. IMAP "\Seen").
	ProviderFlags []string
	Headers       map[string]string
	Attachments   []RawAttachment
}

// RawAttachment is the provider-shaped attachment descriptor.
type RawAttachment struct {
	ProviderAttachmentID string
	Filename             string
	MimeType             string
	SizeBytes            int64
	IsInline             bool
	ContentHash          string
	StorageLocation      string
}

// NormalizedMessage is the canonical output of the normalizer: a message plus
// its attachments and protocol header, ready for reconciliation.
type NormalizedMessage struct {
	Message          Message
	Attachments      []Attachment
	Header           Header
	ProviderThreadID string
}
