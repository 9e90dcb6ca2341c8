package storage

import (
	"context"
	stderrors "errors"
	"io"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	data, _ := io.ReadAll(in.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://files.example/" + *in.Bucket + "/" + *in.Key + "?sig=1"}, nil
}

func TestSaveText(t *testing.T) {
	putter := &fakePutter{}
	client := newSpacesClient(putter, fakePresigner{}, "bucket", time.Hour)
	client.now = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }

	att, err := client.SaveText(context.Background(), "subtitles abc/../x", "Привет")
	if err != nil {
		t.Fatalf("SaveText returned error: %v", err)
	}

	if !strings.HasPrefix(att.Key, "attachments/2026/03/04/") || !strings.HasSuffix(att.Key, "/subtitles_abc_.._x.txt") {
		t.Errorf("unexpected key %s", att.Key)
	}
	if putter.body != "Привет" || *putter.input.ContentType != "text/plain; charset=utf-8" {
		t.Errorf("unexpected upload %q %s", putter.body, *putter.input.ContentType)
	}
	if !strings.Contains(att.URL, att.Key) {
		t.Errorf("URL %s does not reference key", att.URL)
	}
	if att.Size != len("Привет") || !att.ExpiresAt.Equal(time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected attachment %+v", att)
	}
}

func TestSaveDocument(t *testing.T) {
	putter := &fakePutter{}
	client := newSpacesClient(putter, fakePresigner{}, "bucket", time.Hour)

	att, err := client.SaveDocument(context.Background(), "mindmap-1", ".html", "text/html; charset=utf-8", "<html></html>")
	if err != nil {
		t.Fatalf("SaveDocument returned error: %v", err)
	}
	if !strings.HasSuffix(att.Key, "/mindmap-1.html") {
		t.Errorf("unexpected key %s", att.Key)
	}
	if *putter.input.ContentType != "text/html; charset=utf-8" || *putter.input.ContentDisposition != `attachment; filename="mindmap-1.html"` {
		t.Errorf("unexpected headers %s / %s", *putter.input.ContentType, *putter.input.ContentDisposition)
	}
}

func TestSaveTextUploadError(t *testing.T) {
	client := newSpacesClient(&fakePutter{err: stderrors.New("denied")}, fakePresigner{}, "bucket", 0)
	if _, err := client.SaveText(context.Background(), "x", "y"); err == nil || !strings.Contains(err.Error(), "denied") {
		t.Errorf("expected wrapped upload error, got %v", err)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"":               "result",
		"  ...  ":        "result",
		"summary dQw4w9": "summary_dQw4w9",
		"отчёт.txt":      "отчёт.txt",
		"a/b\\c":         "a_b_c",
	}
	for in, want := range tests {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewSpacesClientPresigns(t *testing.T) {
	client, err := NewSpacesClient(context.Background(), SpacesConfig{
		AccessKey: "key",
		SecretKey: "secret",
		Region:    "fra1",
		Endpoint:  "https://fra1.digitaloceanspaces.com",
		Bucket:    "subs",
	})
	if err != nil {
		t.Fatalf("NewSpacesClient returned error: %v", err)
	}

	req, err := client.presigner.PresignGetObject(context.Background(), &s3.GetObjectInput{
		Bucket: &client.bucket,
		Key:    strPtr("attachments/a.txt"),
	}, s3.WithPresignExpires(time.Minute))
	if err != nil {
		t.Fatalf("presign failed: %v", err)
	}
	if !strings.Contains(req.URL, "attachments/a.txt") || !strings.Contains(req.URL, "X-Amz-Signature") {
		t.Errorf("unexpected presigned URL %s", req.URL)
	}

	if _, err := NewSpacesClient(context.Background(), SpacesConfig{}); err == nil {
		t.Error("expected an error without a bucket")
	}
}

func strPtr(s string) *string { return &s }
