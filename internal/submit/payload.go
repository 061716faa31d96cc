package submit

import (
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// PayloadKind selects the backend endpoint a payload is posted to.
type PayloadKind string

const (
	PayloadReport   PayloadKind = "report"
	PayloadSighting PayloadKind = "sighting"
)

// Photo is a binary attachment.
type Photo struct {
	FileName    string
	ContentType string
	Data        []byte
}

type field struct {
	name  string
	value string
}

// Payload is a validated submission ready to be sent.
type Payload struct {
	Kind   PayloadKind
	Photo  *Photo
	fields []field
}

func (p *Payload) add(name, value string) {
	p.fields = append(p.fields, field{name: name, value: value})
}

// Fields returns the text fields by wire name.
func (p *Payload) Fields() map[string]string {
	out := make(map[string]string, len(p.fields))
	for _, f := range p.fields {
		out[f.name] = f.value
	}
	return out
}

// WriteMultipart writes the text fields in order followed by the photo
// part, if any.
func (p *Payload) WriteMultipart(w *multipart.Writer) error {
	for _, f := range p.fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("submit: write field %s: %w", f.name, err)
		}
	}
	if p.Photo == nil {
		return nil
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="photo"; filename="%s"`, escapeQuotes(p.Photo.FileName)))
	h.Set("Content-Type", p.Photo.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("submit: create photo part: %w", err)
	}
	if _, err := part.Write(p.Photo.Data); err != nil {
		return fmt.Errorf("submit: write photo: %w", err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
