package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"v2scrape/collector/model"
	"v2scrape/internal/shared/logger"
	"v2scrape/internal/shared/types"
)

// objectPutter 是 S3Sink 用到的 s3.Client 方法子集
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink 把本次运行写入的所有文件上传到 S3 (或兼容的对象存储)。
// 对象键保持相对 baseDir 的目录结构，README 中的相对链接在桶里依然有效。
type S3Sink struct {
	client  objectPutter
	bucket  string
	prefix  string
	baseDir string
}

// NewS3Sink 使用默认凭证链创建 S3 客户端。Endpoint 非空时使用 path-style 访问。
func NewS3Sink(ctx context.Context, cfg types.S3Conf, baseDir string) (*S3Sink, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Sink(client, cfg, baseDir), nil
}

func newS3Sink(client objectPutter, cfg types.S3Conf, baseDir string) *S3Sink {
	if baseDir == "" {
		baseDir = "."
	}
	return &S3Sink{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		baseDir: baseDir,
	}
}

func (s *S3Sink) Name() string {
	return "s3"
}

// Publish 逐个上传文件，第一个失败即返回。
func (s *S3Sink) Publish(ctx context.Context, res *model.RunResult, files []string) error {
	l := logger.WithComponent("Collector/S3")

	for _, file := range files {
		key := s.objectKey(file)
		if err := s.upload(ctx, file, key); err != nil {
			return err
		}
		l.Debug().Str("key", key).Msg("Uploaded object.")
	}

	l.Info().Int("objects", len(files)).Str("bucket", s.bucket).Str("run_id", res.Record.ID).Msg("Outputs published to S3.")
	return nil
}

func (s *S3Sink) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(file))
	if contentType == "" || strings.HasPrefix(contentType, "text/plain") {
		contentType = "text/plain; charset=utf-8"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", file, s.bucket, key, err)
	}
	return nil
}

func (s *S3Sink) objectKey(file string) string {
	rel, err := filepath.Rel(s.baseDir, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(file)
	}
	return path.Join(s.prefix, filepath.ToSlash(rel))
}

func (s *S3Sink) Close(context.Context) error {
	return nil
}
