package submit

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/shopspring/decimal"

	"github.com/starford/lookout/internal/apperr"
)

// Encoder builds payloads. The zero value sends photos unchanged.
type Encoder struct {
	// JPEGQuality re-encodes JPEG photos at this quality (1-100). 0 disables.
	JPEGQuality int
	// ReadFile reads a photo from local storage. Defaults to os.ReadFile.
	ReadFile func(name string) ([]byte, error)
}

// EncodeReport validates f with the zero Encoder.
func EncodeReport(f ReportForm) (*Payload, error) {
	return (&Encoder{}).EncodeReport(f)
}

// EncodeSighting validates f with the zero Encoder.
func EncodeSighting(f SightingForm) (*Payload, error) {
	return (&Encoder{}).EncodeSighting(f)
}

// EncodeReport validates a missing report and builds its payload. Nothing
// is sent when validation fails.
func (e *Encoder) EncodeReport(f ReportForm) (*Payload, error) {
	f.normalize()
	fields, err := fieldErrors(f.validate())
	if err != nil {
		return nil, fmt.Errorf("submit: validate report: %w", err)
	}
	photo, err := e.loadPhoto(f.Photo, fields)
	if err != nil {
		return nil, err
	}
	if err := validationResult(fields); err != nil {
		return nil, err
	}

	since, _ := time.Parse(DateLayout, f.MissingSince)
	p := &Payload{Kind: PayloadReport, Photo: photo}
	p.add("type", reportType(f.Subject))
	p.add("full_name", f.Name)
	p.add("description", f.Description)
	p.add("phone_number", f.Phone)
	p.addLocation(*f.Location)
	p.add("missing_since", since.Format(DateLayout))
	if f.Reward != "" {
		p.add("reward", f.Reward)
	}
	return p, nil
}

// EncodeSighting validates a sighting and builds its payload.
func (e *Encoder) EncodeSighting(f SightingForm) (*Payload, error) {
	f.normalize()
	fields, err := fieldErrors(f.validate())
	if err != nil {
		return nil, fmt.Errorf("submit: validate sighting: %w", err)
	}
	photo, err := e.loadPhoto(f.Photo, fields)
	if err != nil {
		return nil, err
	}
	if err := validationResult(fields); err != nil {
		return nil, err
	}

	p := &Payload{Kind: PayloadSighting, Photo: photo}
	p.add("type", sightingType(f.Subject))
	p.add("description", f.Description)
	p.add("phone_number", f.Phone)
	p.addLocation(*f.Location)
	return p, nil
}

// The two backend endpoints disagree on the type discriminator. Both
// mappings are kept as the backend expects them.
func reportType(s Subject) string {
	if s == SubjectPet {
		return "1"
	}
	return "0"
}

func sightingType(s Subject) string {
	if s == SubjectPet {
		return "0"
	}
	return "1"
}

func (p *Payload) addLocation(l Location) {
	p.add("lat", decimal.NewFromFloat(l.Lat).String())
	p.add("lon", decimal.NewFromFloat(l.Lon).String())
}

// loadPhoto reads the chosen photo. A missing or unreadable file is recorded
// as a field error on "photo"; a permission failure is returned as
// apperr.ErrPermissionDenied so the caller can retry without a photo.
func (e *Encoder) loadPhoto(ref string, fields map[string]string) (*Photo, error) {
	if ref == "" {
		return nil, nil
	}
	local, name := photoPath(ref)
	if name == "" {
		fields["photo"] = "photo path is invalid"
		return nil, nil
	}

	read := e.ReadFile
	if read == nil {
		read = os.ReadFile
	}
	data, err := read(local)
	switch {
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("submit: read photo: %w", apperr.ErrPermissionDenied)
	case errors.Is(err, fs.ErrNotExist):
		fields["photo"] = "photo not found"
		return nil, nil
	case err != nil:
		fields["photo"] = "photo could not be read"
		return nil, nil
	}

	ext := photoExt(name)
	if e.JPEGQuality > 0 && (ext == "jpg" || ext == "jpeg") {
		data = reencodeJPEG(data, e.JPEGQuality)
	}
	return &Photo{FileName: name, ContentType: "image/" + ext, Data: data}, nil
}

// photoPath resolves a local path or file:// URI to a readable path and the
// filename sent to the backend (the last path segment).
func photoPath(ref string) (local, name string) {
	local = ref
	if strings.HasPrefix(ref, "file://") {
		if u, err := url.Parse(ref); err == nil {
			local = filepath.FromSlash(u.Path)
		}
	}
	name = path.Base(filepath.ToSlash(local))
	if name == "." || name == "/" {
		return local, ""
	}
	return local, name
}

func photoExt(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return "jpg"
	}
	return ext
}

// reencodeJPEG recompresses a JPEG. Undecodable data is sent as it is.
func reencodeJPEG(data []byte, quality int) []byte {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return data
	}
	return buf.Bytes()
}
