// Package images хранит картинки меню и профиля магазина.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	// MaxImageBytes: предельный размер загружаемой картинки.
	MaxImageBytes = 10 << 20

	presignTTL = 7 * 24 * time.Hour
)

// ErrImageTooLarge возвращается, если тело картинки больше MaxImageBytes.
var ErrImageTooLarge = fmt.Errorf("%w: image exceeds %d bytes", domain.ErrMalformedInput, MaxImageBytes)

// S3Config: параметры бакета для картинок.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint задаёт S3-совместимый адрес (MinIO, localstack); включает path-style.
	Endpoint string
	// PublicBaseURL: публичный префикс бакета; без него возвращается presigned GET.
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Storage загружает картинки в S3.
type S3Storage struct {
	client        *s3.Client
	presign       *s3.PresignClient
	bucket        string
	publicBaseURL string
	logger        *log.Entry
}

// NewS3Storage создаёт клиент S3 из стандартной цепочки AWS-конфигурации.
// Статические ключи из cfg имеют приоритет над окружением.
func NewS3Storage(ctx context.Context, cfg S3Config, logger *log.Entry) (*S3Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if logger == nil {
		logger = log.WithField("component", "image-storage")
	}

	loadOptions := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOptions = append(loadOptions, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:        client,
		presign:       s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:        logger,
	}, nil
}

// Upload кладёт объект в бакет и возвращает URL для чтения.
func (s *S3Storage) Upload(ctx context.Context, key, contentType string, body io.Reader, _ int64) (string, error) {
	data, err := readImage(body)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	}); err != nil {
		return "", domain.Transient(fmt.Errorf("put s3 object %s: %w", key, err))
	}

	s.logger.WithFields(log.Fields{"key": key, "bytes": len(data)}).Info("image uploaded")

	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return "", fmt.Errorf("presign s3 object %s: %w", key, err)
	}
	return req.URL, nil
}

// MenuImageKey строит ключ объекта картинки меню: shop/<shopID>/menu/<file>.
func MenuImageKey(shopID, fileName string) (string, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return "", domain.ErrShopIDRequired
	}
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", domain.ErrImageNameRequired
	}
	return "shop/" + shopID + "/menu/" + name, nil
}

func readImage(body io.Reader) ([]byte, error) {
	if body == nil {
		return nil, fmt.Errorf("%w: empty image body", domain.ErrMalformedInput)
	}
	data, err := io.ReadAll(io.LimitReader(body, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image body", domain.ErrMalformedInput)
	}
	return data, nil
}

var _ domain.ImageStorage = (*S3Storage)(nil)
