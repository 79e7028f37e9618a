package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Backend stores state in an S3 object and coordinates the run lock
// through a DynamoDB table, so concurrent runs against the same state are
// mutually exclusive across machines.
type S3Backend struct {
	s3Client  *s3.Client
	ddbClient *dynamodb.Client
	bucket    string
	key       string
	lockTable string
}

func NewS3Backend(ctx context.Context, cfg BackendConfig) (*S3Backend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &S3Backend{
		s3Client:  s3.NewFromConfig(awsCfg),
		ddbClient: dynamodb.NewFromConfig(awsCfg),
		bucket:    cfg.Bucket,
		key:       cfg.Key,
		lockTable: cfg.LockTable,
	}, nil
}

func (b *S3Backend) Load(ctx context.Context) ([]byte, error) {
	out, err := b.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching state object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading state object: %w", err)
	}
	return data, nil
}

func (b *S3Backend) Save(ctx context.Context, data []byte) error {
	_, err := b.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("writing state object: %w", err)
	}
	return nil
}

// lockID is the partition key value for this state's lock row.
func (b *S3Backend) lockID() string {
	return b.bucket + "/" + b.key
}

func (b *S3Backend) Lock(ctx context.Context, info *LockInfo) error {
	if b.lockTable == "" {
		return nil
	}

	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}

	_, err = b.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.lockTable),
		Item: map[string]ddbtypes.AttributeValue{
			"LockID": &ddbtypes.AttributeValueMemberS{Value: b.lockID()},
			"Info":   &ddbtypes.AttributeValueMemberS{Value: string(payload)},
		},
		ConditionExpression: aws.String("attribute_not_exists(LockID)"),
	})
	if err != nil {
		var condFailed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return &ErrLocked{Holder: b.lockHolder(ctx)}
		}
		return fmt.Errorf("acquiring state lock: %w", err)
	}
	return nil
}

func (b *S3Backend) Unlock(ctx context.Context, info *LockInfo) error {
	if b.lockTable == "" {
		return nil
	}
	_, err := b.ddbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.lockTable),
		Key: map[string]ddbtypes.AttributeValue{
			"LockID": &ddbtypes.AttributeValueMemberS{Value: b.lockID()},
		},
	})
	if err != nil {
		return fmt.Errorf("releasing state lock: %w", err)
	}
	return nil
}

func (b *S3Backend) lockHolder(ctx context.Context) *LockInfo {
	out, err := b.ddbClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.lockTable),
		Key: map[string]ddbtypes.AttributeValue{
			"LockID": &ddbtypes.AttributeValueMemberS{Value: b.lockID()},
		},
	})
	if err != nil {
		return nil
	}
	attr, ok := out.Item["Info"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return nil
	}
	var info LockInfo
	if err := json.Unmarshal([]byte(attr.Value), &info); err != nil {
		return nil
	}
	return &info
}
