// Package audit archives a point-in-time snapshot of an application's
// blacklist to S3-compatible object storage. It is strictly additive:
// archiving never gates or blocks any coordinator operation, and a failed
// upload only loses one snapshot, not coordinator state.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/txcoord/txcoord/encoding"
	"github.com/txcoord/txcoord/executor"
	"github.com/txcoord/txcoord/pathbuilder"
	"github.com/txcoord/txcoord/session"
)

// Config configures the S3-compatible endpoint the archiver uploads to.
type Config struct {
	// HostEndpointURL e.g. "http://127.0.0.1:9000" for a local minio instance.
	HostEndpointURL string
	Region          string
	Username        string
	Password        string
	Bucket          string
}

// Connect returns an S3 client for config's endpoint.
func Connect(config Config) *s3.Client {
	return s3.NewFromConfig(aws.Config{Region: config.Region}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(config.HostEndpointURL)
		o.Credentials = credentials.NewStaticCredentialsProvider(config.Username, config.Password, "")
	})
}

// Archiver uploads blacklist snapshots to S3.
type Archiver struct {
	uploader *manager.Uploader
	bucket   string
	exec     *executor.Executor
	sessions *session.Manager
	deadline time.Duration
	now      func() time.Time
}

// NewArchiver returns an Archiver uploading to bucket via client.
func NewArchiver(client *s3.Client, bucket string, exec *executor.Executor, sessions *session.Manager, deadline time.Duration) *Archiver {
	return &Archiver{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		exec:     exec,
		sessions: sessions,
		deadline: deadline,
		now:      time.Now,
	}
}

type snapshot struct {
	App          string          `json:"app"`
	TakenAt      int64           `json:"taken_at"`
	Transactions []blacklistedTx `json:"transactions"`
}

type blacklistedTx struct {
	TxID     uint64 `json:"tx_id"`
	FailedAt int64  `json:"failed_at"`
}

// ArchiveBlacklist uploads a JSON snapshot of every currently blacklisted
// transaction for app, keyed by upload time so successive snapshots never
// collide.
func (a *Archiver) ArchiveBlacklist(ctx context.Context, app string) error {
	root := pathbuilder.BlacklistRoot(app)

	var names []string
	err := a.exec.Run(ctx, "audit.list_blacklist", a.deadline, func(ctx context.Context) error {
		n, err := a.sessions.Persistent().Children(ctx, root)
		names = n
		return err
	})
	if err != nil {
		return fmt.Errorf("audit: listing blacklist for %s: %w", app, err)
	}

	entries := make([]blacklistedTx, 0, len(names))
	for _, name := range names {
		tx, ok := parseTxName(name)
		if !ok {
			continue
		}

		var value []byte
		err := a.exec.Run(ctx, "audit.read_blacklist_entry", a.deadline, func(ctx context.Context) error {
			v, err := a.sessions.Persistent().Get(ctx, root+"/"+name)
			value = v
			return err
		})
		if err != nil {
			continue // best-effort: a single racing delete shouldn't fail the snapshot
		}

		failedAt, _ := strconv.ParseInt(string(value), 10, 64)
		entries = append(entries, blacklistedTx{TxID: tx, FailedAt: failedAt})
	}

	now := a.now()
	buf, err := encoding.Marshal(snapshot{App: app, TakenAt: now.Unix(), Transactions: entries})
	if err != nil {
		return fmt.Errorf("audit: marshaling snapshot for %s: %w", app, err)
	}

	key := fmt.Sprintf("%s/blacklist-%d.json", app, now.UnixNano())
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf),
	})
	if err != nil {
		return fmt.Errorf("audit: uploading snapshot for %s: %w", app, err)
	}
	return nil
}

func parseTxName(name string) (uint64, bool) {
	digits, ok := strings.CutPrefix(name, "tx")
	if !ok || digits == "" {
		return 0, false
	}
	tx, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return tx, true
}
