// Package pinning turns a local file into a link that can be sent as
// message content. Files are stored in an S3-compatible bucket; links are
// presigned GET URLs with a chosen lifetime.
package pinning

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	clientconfig "github.com/dmitrijs2005/roomchat/internal/client/config"
	"github.com/dmitrijs2005/roomchat/internal/common"
	"github.com/dmitrijs2005/roomchat/internal/logging"
	"github.com/dmitrijs2005/roomchat/internal/netx"
	"github.com/google/uuid"
)

// MaxFileSize bounds uploads read into memory.
const MaxFileSize = 25 << 20

// Supported content types, by sniffed MIME type.
var supportedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"application/pdf": ".pdf",
}

// Pinned describes an uploaded file.
type Pinned struct {
	ContentID   string
	URL         string
	Name        string
	ContentType string
	Size        int
}

// Service is the content-pinning capability the session uses.
type Service interface {
	Upload(ctx context.Context, filePath string) (Pinned, error)
	CreateSignedURL(ctx context.Context, contentID string, expiry time.Duration) (string, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}

	uploadObject = netx.PutPresigned
)

type S3Service struct {
	cfg  clientconfig.S3Config
	http *http.Client
	log  logging.Logger

	once      sync.Once
	presigner *s3.PresignClient
	initErr   error
}

func NewS3Service(cfg clientconfig.S3Config, httpClient *http.Client, log logging.Logger) *S3Service {
	if log == nil {
		log = logging.Discard()
	}
	return &S3Service{cfg: cfg, http: httpClient, log: log}
}

func (s *S3Service) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	s.once.Do(func() {
		awsCfg, err := loadDefaultAWSConfig(ctx,
			config.WithRegion(s.cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				s.cfg.AccessKey,
				s.cfg.SecretKey,
				"",
			)),
		)
		if err != nil {
			s.initErr = fmt.Errorf("load aws config: %w", err)
			return
		}

		client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
			if s.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(s.cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
		s.presigner = s3.NewPresignClient(client)
	})
	return s.presigner, s.initErr
}

// Upload stores the file at filePath and returns its content id and
// unsigned object URL.
func (s *S3Service) Upload(ctx context.Context, filePath string) (Pinned, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return Pinned{}, err
	}
	if info.IsDir() {
		return Pinned{}, fmt.Errorf("%s: %w: is a directory", filePath, common.ErrUnsupportedFile)
	}
	if info.Size() > MaxFileSize {
		return Pinned{}, fmt.Errorf("%s: file is larger than %d bytes", filePath, MaxFileSize)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return Pinned{}, err
	}

	contentType, ext, err := sniff(data)
	if err != nil {
		return Pinned{}, fmt.Errorf("%s: %w", filePath, err)
	}

	pc, err := s.presignClient(ctx)
	if err != nil {
		return Pinned{}, err
	}

	contentID := uuid.NewString() + ext
	req, err := presignPutObject(pc, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(contentID),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return Pinned{}, fmt.Errorf("presign upload: %w", err)
	}

	if err := uploadObject(ctx, s.http, req.URL, contentType, data); err != nil {
		return Pinned{}, err
	}

	s.log.Info(ctx, "file pinned", "content_id", contentID, "type", contentType, "size", len(data))
	return Pinned{
		ContentID:   contentID,
		URL:         objectURL(req.URL),
		Name:        filepath.Base(filePath),
		ContentType: contentType,
		Size:        len(data),
	}, nil
}

// CreateSignedURL returns a presigned GET URL for contentID. Lifetimes
// above MaxPresignExpiry are clamped.
func (s *S3Service) CreateSignedURL(ctx context.Context, contentID string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if expiry > MaxPresignExpiry {
		s.log.Warn(ctx, "link lifetime clamped", "requested", expiry, "max", MaxPresignExpiry)
		expiry = MaxPresignExpiry
	}

	pc, err := s.presignClient(ctx)
	if err != nil {
		return "", err
	}

	req, err := presignGetObject(pc, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(contentID),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return req.URL, nil
}

func sniff(data []byte) (contentType, ext string, err error) {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ext, ok := supportedTypes[ct]
	if !ok {
		return "", "", fmt.Errorf("%w: %s (JPG, PNG, GIF or PDF only)", common.ErrUnsupportedFile, ct)
	}
	return ct, ext, nil
}

// objectURL strips the signature query from a presigned URL.
func objectURL(presigned string) string {
	u, err := url.Parse(presigned)
	if err != nil {
		return presigned
	}
	u.RawQuery = ""
	u.Path = path.Clean(u.Path)
	return u.String()
}

// MessageContent renders an attachment as a chat line.
func MessageContent(p Pinned, signedURL string) string {
	return fmt.Sprintf("[file] %s (%s) %s", p.Name, p.ContentType, signedURL)
}
