// Package storage archives delivered artifacts to an S3-compatible bucket.
// The archive is optional and best-effort: a failed upload is logged and
// never affects delivery.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/talebot/internal/audio"
	"github.com/snappy-loop/talebot/internal/llm"
)

// Archive wraps S3 artifact uploads.
type Archive struct {
	s3Client  *s3.Client
	bucket    string
	publicURL string // optional base URL for a public bucket
}

// NewArchive creates an S3 archive client.
func NewArchive(endpoint, region, bucket, accessKey, secretKey, publicURL string) (*Archive, error) {
	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	}

	// Custom endpoint for MinIO/LocalStack/R2
	if endpoint != "" {
		configOpts = append(configOpts, config.WithBaseEndpoint(endpoint))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Path-style addressing and relaxed checksums so S3-compatible backends
	// (e.g. Cloudflare R2) that don't fully support CRC32 headers work.
	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	log.Info().
		Str("endpoint", endpoint).
		Str("bucket", bucket).
		Msg("Artifact archive initialized")

	return &Archive{
		s3Client:  s3Client,
		bucket:    bucket,
		publicURL: publicURL,
	}, nil
}

// PublicURL returns the public URL for an object key. Empty if publicURL was not configured.
func (a *Archive) PublicURL(key string) string {
	if a.publicURL == "" {
		return ""
	}
	return strings.TrimSuffix(a.publicURL, "/") + "/" + key
}

// ArchiveTale uploads the tale text and any delivered illustration and
// narration under tales/<chat>/<uuid>/.
func (a *Archive) ArchiveTale(ctx context.Context, chatID int64, story string, image *llm.Image, voice *audio.Artifact) {
	prefix := fmt.Sprintf("tales/%d/%s", chatID, uuid.New())

	a.upload(ctx, prefix+"/story.txt", []byte(story), "text/plain; charset=utf-8")
	if url := a.PublicURL(prefix + "/story.txt"); url != "" {
		log.Debug().Str("url", url).Msg("Tale archived at public URL")
	}
	if image != nil {
		a.upload(ctx, prefix+"/"+imageObjectName(image.MimeType), image.Data, image.MimeType)
	}
	if voice != nil {
		name := "narration.wav"
		if voice.Kind == audio.KindVoice {
			name = "narration.ogg"
		}
		a.upload(ctx, prefix+"/"+name, voice.Data, voice.MimeType)
	}
}

// upload puts one object; failures are logged only. S3-compatible backends
// (e.g. R2) require the Content-Length header, so it is always set.
func (a *Archive) upload(ctx context.Context, key string, data []byte, contentType string) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if _, err := a.s3Client.PutObject(ctx, input); err != nil {
		log.Warn().Err(err).
			Str("bucket", a.bucket).
			Str("key", key).
			Msg("Artifact upload failed")
		return
	}

	log.Info().
		Str("bucket", a.bucket).
		Str("key", key).
		Msg("Artifact archived")
}

func imageObjectName(mimeType string) string {
	if mimeType == "image/jpeg" {
		return "illustration.jpg"
	}
	return "illustration.png"
}
