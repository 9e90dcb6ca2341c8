package storage

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const DefaultURLExpiry = 24 * time.Hour

type SpacesConfig struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string
	Bucket    string
	URLExpiry time.Duration
	// PathStyle addresses the bucket in the path instead of the host.
	PathStyle bool
}

// Attachment is an uploaded result reachable through a presigned URL.
type Attachment struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Size      int       `json:"size"`
	ExpiresAt time.Time `json:"expires_at"`
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// SpacesClient stores long results in an S3-compatible bucket.
type SpacesClient struct {
	client    objectPutter
	presigner objectPresigner
	bucket    string
	expiry    time.Duration
	now       func() time.Time
}

func NewSpacesClient(ctx context.Context, cfg SpacesConfig) (*SpacesClient, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("spaces: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load SDK config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return newSpacesClient(client, s3.NewPresignClient(client), cfg.Bucket, cfg.URLExpiry), nil
}

func newSpacesClient(client objectPutter, presigner objectPresigner, bucket string, expiry time.Duration) *SpacesClient {
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}
	return &SpacesClient{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		expiry:    expiry,
		now:       time.Now,
	}
}

// SaveText uploads text as a UTF-8 file named after name and returns a
// download link.
func (s *SpacesClient) SaveText(ctx context.Context, name, text string) (*Attachment, error) {
	return s.SaveDocument(ctx, name, ".txt", "text/plain; charset=utf-8", text)
}

// SaveDocument uploads text as name+ext with the given content type.
func (s *SpacesClient) SaveDocument(ctx context.Context, name, ext, contentType, text string) (*Attachment, error) {
	now := s.now().UTC()
	filename := sanitizeName(name) + ext
	key := path.Join("attachments", now.Format("2006/01/02"), uuid.NewString(), filename)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               strings.NewReader(text),
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", filename)),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to save %s to Spaces", key)
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to presign %s", key)
	}

	return &Attachment{
		Key:       key,
		URL:       req.URL,
		Size:      len(text),
		ExpiresAt: now.Add(s.expiry),
	}, nil
}

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

func sanitizeName(name string) string {
	name = strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(name), "_"), "._")
	if name == "" {
		return "result"
	}
	if r := []rune(name); len(r) > 64 {
		name = string(r[:64])
	}
	return name
}
