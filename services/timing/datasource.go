package timing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source reads a captured trace from some location.
type Source interface {
	Read(ctx context.Context) (io.ReadCloser, error)
}

// Sink receives an exported report.
type Sink interface {
	Write(ctx context.Context, data io.Reader) error
}

// S3Options configures S3 access. Empty fields fall back to the AWS default chain.
type S3Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// OpenSource picks a Source for ref: "s3://bucket/key", "http(s)://...",
// "-" for stdin, anything else is a local path.
func OpenSource(ref string, opts S3Options) (Source, error) {
	switch {
	case ref == "":
		return nil, fmt.Errorf("empty trace reference")
	case ref == "-":
		return NewReaderSource(os.Stdin), nil
	case strings.HasPrefix(ref, "s3://"):
		bucket, key, err := parseS3URL(ref)
		if err != nil {
			return nil, err
		}
		return NewS3Object(bucket, key, opts), nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return NewURLSource(ref, nil), nil
	default:
		return NewFileSource(ref), nil
	}
}

// OpenSink picks a Sink for dest: "s3://bucket/key" or a local path.
func OpenSink(dest string, opts S3Options) (Sink, error) {
	if strings.HasPrefix(dest, "s3://") {
		bucket, key, err := parseS3URL(dest)
		if err != nil {
			return nil, err
		}
		return NewS3Object(bucket, key, opts), nil
	}
	if dest == "" {
		return nil, fmt.Errorf("empty export destination")
	}
	return NewFileSource(dest), nil
}

func parseS3URL(ref string) (string, string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URL %q: %w", ref, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 URL %q: want s3://bucket/key", ref)
	}
	return u.Host, key, nil
}

// FileSource reads and writes a local file.
type FileSource struct {
	path string
}

// NewFileSource creates a local file source.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Read opens the file.
func (f *FileSource) Read(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(f.path)
}

// Write replaces the file with data.
func (f *FileSource) Write(ctx context.Context, data io.Reader) error {
	out, err := os.Create(f.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", f.path, err)
	}
	if _, err := io.Copy(out, data); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	return out.Close()
}

// ReaderSource serves an already open reader once.
type ReaderSource struct {
	r io.Reader
}

// NewReaderSource wraps r.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

// NewInlineSource serves data from memory.
func NewInlineSource(data []byte) *ReaderSource {
	return &ReaderSource{r: bytes.NewReader(data)}
}

// Read returns the wrapped reader.
func (s *ReaderSource) Read(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(s.r), nil
}

// URLSource fetches a trace over HTTP(S).
type URLSource struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewURLSource creates a URL source.
func NewURLSource(url string, headers map[string]string) *URLSource {
	return &URLSource{
		url:     url,
		headers: headers,
		client:  http.DefaultClient,
	}
}

// Read fetches the URL.
func (u *URLSource) Read(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range u.headers {
		req.Header.Set(k, v)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trace: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// S3Object reads traces from, and writes reports to, an S3 or S3-compatible object.
type S3Object struct {
	bucket string
	key    string
	opts   S3Options
}

// NewS3Object creates an S3 object handle.
func NewS3Object(bucket, key string, opts S3Options) *S3Object {
	return &S3Object{bucket: bucket, key: key, opts: opts}
}

// Read fetches the object body.
func (s *S3Object) Read(ctx context.Context) (io.ReadCloser, error) {
	client, err := s.client(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return out.Body, nil
}

// Write uploads data as the object body.
func (s *S3Object) Write(ctx context.Context, data io.Reader) error {
	client, err := s.client(ctx)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

func (s *S3Object) client(ctx context.Context) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if s.opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(s.opts.Region))
	}
	if s.opts.AccessKeyID != "" && s.opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.opts.AccessKeyID, s.opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	var s3Opts []func(*s3.Options)
	if s.opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s.opts.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(cfg, s3Opts...), nil
}

// ReadTrace loads and decodes a trace from src.
func ReadTrace(ctx context.Context, src Source) ([]Record, error) {
	rc, err := src.Read(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ParseRecords(rc)
}
