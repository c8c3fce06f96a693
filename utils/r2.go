// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Claim documents (W-9 forms, photo IDs) are stored in Cloudflare R2 under a
// private bucket; only the object URL is kept on the PrizeClaim row.

var r2Client *s3.Client
var r2Bucket string
var docBaseURL string

// MaxClaimDocumentSize caps uploaded claim documents at 10MB.
const MaxClaimDocumentSize = 10 * 1024 * 1024

var allowedDocumentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/heic":      true,
}

func InitR2() error {
	accountID := os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	accessKeyID := os.Getenv("R2_ACCESS_KEY_ID")
	accessKeySecret := os.Getenv("R2_ACCESS_KEY_SECRET")
	r2Bucket = os.Getenv("R2_BUCKET_NAME")
	docBaseURL = os.Getenv("DOCUMENT_BASE_URL")
	if docBaseURL == "" {
		docBaseURL = fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s", accountID, r2Bucket)
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, accessKeySecret, "",
		)),
		config.WithEndpointResolver(aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
				}, nil
			}),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load R2 config: %w", err)
	}

	r2Client = s3.NewFromConfig(cfg)
	return nil
}

// R2Enabled reports whether document storage was initialized. Tests and local
// development fall back to on-disk storage (see file.go).
func R2Enabled() bool {
	return r2Client != nil
}

// UploadClaimDocument validates and uploads a claim document, returning its URL.
// key is the object key, e.g., "claims/w9/<uuid>.pdf".
func UploadClaimDocument(fileHeader *multipart.FileHeader, key string) (string, error) {
	if fileHeader.Size > MaxClaimDocumentSize {
		return "", fmt.Errorf("document exceeds %dMB limit", MaxClaimDocumentSize/(1024*1024))
	}
	contentType := strings.ToLower(strings.TrimSpace(fileHeader.Header.Get("Content-Type")))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !allowedDocumentTypes[contentType] {
		return "", fmt.Errorf("unsupported document type %q (pdf, jpeg, png, heic only)", contentType)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}
	defer file.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, io.LimitReader(file, MaxClaimDocumentSize+1)); err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	if int64(buf.Len()) > MaxClaimDocumentSize {
		return "", fmt.Errorf("document exceeds %dMB limit", MaxClaimDocumentSize/(1024*1024))
	}

	if !R2Enabled() {
		return SaveDocumentLocally(buf.Bytes(), key)
	}

	_, err = r2Client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket:      aws.String(r2Bucket),
		Key:         aws.String(key),
		Body:        buf,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	return fmt.Sprintf("%s/%s", docBaseURL, key), nil
}
