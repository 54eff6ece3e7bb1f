package cloudsync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/courtside/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DynamoAPI is the part of the DynamoDB client the store needs
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoConfig holds configuration for the DynamoDB backend
type DynamoConfig struct {
	Region       string
	Table        string
	Key          string
	PollInterval time.Duration
}

// DefaultDynamoConfig returns default DynamoDB configuration
func DefaultDynamoConfig() DynamoConfig {
	return DynamoConfig{
		Table:        "courtside_boards",
		Key:          DefaultDocumentKey,
		PollInterval: 2 * time.Second,
	}
}

type dynamoItem struct {
	Key       string `dynamodbav:"key"`
	Payload   string `dynamodbav:"payload"`
	Revision  uint64 `dynamodbav:"revision"`
	UpdatedAt int64  `dynamodbav:"updatedAt"`
}

// DynamoStore keeps the board as a single DynamoDB item. DynamoDB has no
// push subscription for plain tables, so Watch polls the item.
type DynamoStore struct {
	client DynamoAPI
	clock  clockwork.Clock
	config DynamoConfig
}

// NewDynamoClient builds a client from the default AWS credential chain
func NewDynamoClient(ctx context.Context, region string) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

// NewDynamoStore creates a store on top of client
func NewDynamoStore(client DynamoAPI, clock clockwork.Clock, cfg DynamoConfig) *DynamoStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultDynamoConfig().PollInterval
	}
	return &DynamoStore{client: client, clock: clock, config: cfg}
}

// Load reads the item with a consistent read
func (s *DynamoStore) Load(ctx context.Context) (Snapshot, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.Table),
		Key:            s.itemKey(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("get item %s: %w", s.config.Key, err)
	}
	if len(out.Item) == 0 {
		return Snapshot{}, nil
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal item %s: %w", s.config.Key, err)
	}

	matches, ok := DecodeMatches([]byte(item.Payload))
	if !ok {
		log.Warn().
			Str("table", s.config.Table).
			Uint64("revision", item.Revision).
			Msg("ignoring malformed board document")
		return Snapshot{Revision: item.Revision}, nil
	}
	return Snapshot{Matches: matches, Revision: item.Revision, Present: true}, nil
}

// Push writes the item with a condition on the stored revision
func (s *DynamoStore) Push(ctx context.Context, matches []models.Match, expected uint64) (uint64, error) {
	data, err := EncodeMatches(matches)
	if err != nil {
		return 0, err
	}

	next := expected + 1
	av, err := attributevalue.MarshalMap(dynamoItem{
		Key:       s.config.Key,
		Payload:   string(data),
		Revision:  next,
		UpdatedAt: s.clock.Now().UnixMilli(),
	})
	if err != nil {
		return 0, fmt.Errorf("marshal item: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.config.Table),
		Item:      av,
	}
	if expected == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(#k)")
		input.ExpressionAttributeNames = map[string]string{"#k": "key"}
	} else {
		input.ConditionExpression = aws.String("#r = :expected")
		input.ExpressionAttributeNames = map[string]string{"#r": "revision"}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatUint(expected, 10)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("put item %s: %w", s.config.Key, err)
	}
	return next, nil
}

// Watch polls the item every PollInterval and emits newer revisions
func (s *DynamoStore) Watch(ctx context.Context) (<-chan Snapshot, error) {
	out := make(chan Snapshot, 16)
	go func() {
		defer close(out)

		ticker := s.clock.NewTicker(s.config.PollInterval)
		defer ticker.Stop()

		var lastSeen uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				snap, err := s.Load(ctx)
				if err != nil {
					log.Error().Err(err).Str("table", s.config.Table).Msg("failed to poll board item")
					continue
				}
				if snap.Revision <= lastSeen {
					continue
				}
				lastSeen = snap.Revision
				if snap.Present {
					deliverLatest(out, snap)
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the AWS client has nothing to release
func (s *DynamoStore) Close() error {
	return nil
}

func (s *DynamoStore) itemKey() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: s.config.Key},
	}
}
