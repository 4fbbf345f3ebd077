package blob

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateUpload(t *testing.T) {
	cases := []struct {
		name        string
		size        int64
		contentType string
		wantErr     error
	}{
		{name: "png within limit", size: 1024, contentType: "image/png", wantErr: nil},
		{name: "jpeg within limit", size: MaxUploadBytes, contentType: "image/jpeg", wantErr: nil},
		{name: "pjpeg allowed", size: 10, contentType: "image/pjpeg", wantErr: nil},
		{name: "plain text allowed", size: 10, contentType: "text/plain", wantErr: nil},
		{name: "plain text with charset", size: 10, contentType: "text/plain; charset=utf-8", wantErr: nil},
		{name: "rtf allowed", size: 10, contentType: "text/rtf", wantErr: nil},
		{name: "pdf allowed", size: 10, contentType: "application/pdf", wantErr: nil},
		{name: "uppercase type normalized", size: 10, contentType: "IMAGE/PNG", wantErr: nil},
		{name: "one byte over limit", size: MaxUploadBytes + 1, contentType: "image/png", wantErr: ErrTooLarge},
		{name: "executable rejected", size: 10, contentType: "application/octet-stream", wantErr: ErrUnsupportedType},
		{name: "html rejected", size: 10, contentType: "text/html", wantErr: ErrUnsupportedType},
		{name: "empty type rejected", size: 10, contentType: "", wantErr: ErrUnsupportedType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUpload(tc.size, tc.contentType)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ValidateUpload(%d, %q) = %v, want %v", tc.size, tc.contentType, err, tc.wantErr)
			}
		})
	}
}

func TestStoredName(t *testing.T) {
	name := StoredName("report.PDF")
	if !strings.HasSuffix(name, ".pdf") {
		t.Errorf("expected lowercased extension, got %s", name)
	}
	if !strings.HasPrefix(name, "att") {
		t.Errorf("expected att prefix, got %s", name)
	}

	// Two uploads of the same filename must not collide.
	if StoredName("a.png") == StoredName("a.png") {
		t.Error("stored names must be unique per upload")
	}

	// No extension is fine.
	bare := StoredName("README")
	if strings.Contains(bare, ".") {
		t.Errorf("expected no extension, got %s", bare)
	}
}
