package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/quantfold/polyscout/internal/engine"
)

// Archiver uploads each published cycle snapshot as a JSON object keyed by
// day and cycle number:
//
//	snapshots/2026/03/15/cycle-42.json
//
// It is wired as an engine snapshot sink; upload failures surface as sink
// errors, which the engine degrades to a log line.
type Archiver struct {
	client *Client
}

func NewArchiver(client *Client) *Archiver {
	return &Archiver{client: client}
}

func (a *Archiver) PublishSnapshot(ctx context.Context, snap engine.Snapshot) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("s3blob: encode snapshot: %w", err)
	}

	key := fmt.Sprintf("snapshots/%s/cycle-%d.json", snap.At.UTC().Format("2006/01/02"), snap.Cycle)
	_, err := a.client.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put snapshot %s: %w", key, err)
	}
	return nil
}

var _ engine.Sink = (*Archiver)(nil)
