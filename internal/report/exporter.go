// Package report renders a job's collected quotes to CSV and delivers the
// file to a local directory or an S3 bucket.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ablair264/SplitLease-Backend/internal/config"
	"github.com/ablair264/SplitLease-Backend/internal/models"
)

// Sink stores one rendered export and returns its location.
type Sink interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Exporter turns a finished job into a CSV dropped on the configured sink.
type Exporter struct {
	sink Sink
}

// New picks the sink from config: S3 when a bucket is set, the local
// export directory otherwise.
func New(ctx context.Context, cfg config.Config) (*Exporter, error) {
	if cfg.ExportS3Bucket != "" {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Exporter{sink: &s3Sink{client: client, bucket: cfg.ExportS3Bucket}}, nil
	}

	dir := cfg.ExportDir
	if dir == "" {
		dir = "./exports"
	}
	return &Exporter{sink: &localSink{baseDir: dir}}, nil
}

// NewWithSink builds an exporter over a caller-supplied sink.
func NewWithSink(sink Sink) *Exporter {
	return &Exporter{sink: sink}
}

// Export renders the job's quotes and stores them under quotes/<job id>.csv.
func (e *Exporter) Export(ctx context.Context, job models.Job, results []models.QuoteResult) (string, error) {
	body, err := renderCSV(results)
	if err != nil {
		return "", err
	}
	key := sanitizeKey(fmt.Sprintf("quotes/%s.csv", job.ID))
	location, err := e.sink.Put(ctx, key, body, "text/csv")
	if err != nil {
		return "", fmt.Errorf("store export: %w", err)
	}
	return location, nil
}

var csvHeader = []string{
	"manufacturer", "model", "variant",
	"term_months", "annual_mileage",
	"monthly_rental_net", "monthly_rental_gross",
	"initial_payment", "total_cost", "fetched_at",
}

func renderCSV(results []models.QuoteResult) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range results {
		row := []string{
			r.Manufacturer,
			r.Model,
			r.Variant,
			strconv.Itoa(r.TermMonths),
			strconv.Itoa(r.AnnualMileage),
			formatMoney(r.MonthlyRentalNet),
			formatMoney(r.MonthlyRentalGross),
			formatMoney(r.InitialPayment),
			formatMoney(r.TotalCost),
			r.FetchedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func sanitizeKey(key string) string {
	key = filepath.Clean(key)
	key = strings.TrimPrefix(key, string(filepath.Separator))
	key = strings.TrimPrefix(key, "./")
	return key
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ExportS3Region),
	}
	if cfg.ExportS3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.ExportS3Endpoint,
					HostnameImmutable: cfg.ExportS3PathStyle,
					SigningRegion:     cfg.ExportS3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ExportS3PathStyle
	}), nil
}

type localSink struct {
	baseDir string
}

func (l *localSink) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	path := filepath.Join(l.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

type s3Sink struct {
	client *s3.Client
	bucket string
}

func (s *s3Sink) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
