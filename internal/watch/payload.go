package watch

import "schedbot/internal/transport"

// PayloadKind selects how a change is rendered for subscribers.
type PayloadKind int

const (
	KindText PayloadKind = iota
	KindDocuments
)

func (k PayloadKind) String() string {
	if k == KindDocuments {
		return "documents"
	}
	return "text"
}

// Payload is the rendering shared by every recipient of one tick. It is
// either a TextPayload or a DocumentPayload.
type Payload interface {
	Kind() PayloadKind
}

// TextPayload is the HTML digest sent as a single message.
type TextPayload struct {
	HTML string
}

func (TextPayload) Kind() PayloadKind { return KindText }

// DocumentPayload carries downloaded files in upload groups.
//
// Caption goes on the first document of the first group. When the digest is
// too long for a caption it travels in Preface as a separate message sent
// before the documents, and Caption is empty.
type DocumentPayload struct {
	Preface string
	Caption string
	Groups  [][]transport.Document
}

func (DocumentPayload) Kind() PayloadKind { return KindDocuments }

// Documents counts every file across groups.
func (p DocumentPayload) Documents() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g)
	}
	return n
}
