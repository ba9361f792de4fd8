package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo understands just the key conditions DynamoEventStore issues.
type fakeDynamo struct {
	mu        sync.Mutex
	events    map[string]map[string]types.AttributeValue
	snapshots map[string]map[string]types.AttributeValue
	// staleReads makes the next-version lookup miss existing items,
	// simulating a writer that lost the race.
	staleReads bool
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		events:    make(map[string]map[string]types.AttributeValue),
		snapshots: make(map[string]map[string]types.AttributeValue),
	}
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var key struct {
		AggregateID string `dynamodbav:"aggregate_id"`
		Version     int    `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(in.Item, &key); err != nil {
		return nil, err
	}

	if aws.ToString(in.TableName) == "snapshots" {
		if existing, ok := f.snapshots[key.AggregateID]; ok {
			var cur struct {
				Version int `dynamodbav:"version"`
			}
			_ = attributevalue.UnmarshalMap(existing, &cur)
			if cur.Version >= key.Version {
				return nil, &types.ConditionalCheckFailedException{Message: aws.String("stale snapshot")}
			}
		}
		f.snapshots[key.AggregateID] = in.Item
		return &dynamodb.PutItemOutput{}, nil
	}

	pk := fmt.Sprintf("%s#%d", key.AggregateID, key.Version)
	if _, ok := f.events[pk]; ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	f.events[pk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := in.Key["aggregate_id"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.snapshots[id]}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	type row struct {
		item      map[string]types.AttributeValue
		aggregate string
		version   int
		createdAt string
	}
	var rows []row
	for _, item := range f.events {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			return nil, err
		}
		rows = append(rows, row{item: item, aggregate: de.AggregateID, version: de.Version, createdAt: de.CreatedAt})
	}

	if aws.ToString(in.IndexName) == "GSI1" {
		sort.Slice(rows, func(i, j int) bool { return rows[i].createdAt < rows[j].createdAt })
		out := &dynamodb.QueryOutput{}
		for _, r := range rows {
			out.Items = append(out.Items, r.item)
		}
		return out, nil
	}

	aid := in.ExpressionAttributeValues[":aid"].(*types.AttributeValueMemberS).Value
	from := -1
	if v, ok := in.ExpressionAttributeValues[":ver"]; ok {
		from, _ = strconv.Atoi(v.(*types.AttributeValueMemberN).Value)
	}
	latestOnly := in.Limit != nil && !aws.ToBool(in.ScanIndexForward)
	if latestOnly && f.staleReads {
		return &dynamodb.QueryOutput{}, nil
	}

	var matched []row
	for _, r := range rows {
		if r.aggregate == aid && r.version > from {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].version < matched[j].version })
	if !aws.ToBool(in.ScanIndexForward) {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	if in.Limit != nil && int(*in.Limit) < len(matched) {
		matched = matched[:*in.Limit]
	}

	out := &dynamodb.QueryOutput{}
	for _, r := range matched {
		out.Items = append(out.Items, r.item)
	}
	return out, nil
}

func TestDynamoEventStore_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	es := NewDynamoEventStore(newFakeDynamo(), "events", "snapshots")

	e1, err := es.Append(ctx, "order-1", "Order", "OrderPlaced", map[string]int{"total": 900})
	require.NoError(t, err)
	e2, err := es.Append(ctx, "order-1", "Order", "OrderConfirmed", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, e1.Version)
	assert.Equal(t, 2, e2.Version)

	events, err := es.GetEvents(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "OrderPlaced", events[0].EventType)
	assert.JSONEq(t, `{"total":900}`, string(events[0].Data))
	assert.WithinDuration(t, e1.Timestamp, events[0].Timestamp, time.Microsecond)

	tail, err := es.GetEventsFromVersion(ctx, "order-1", 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "OrderConfirmed", tail[0].EventType)
}

func TestDynamoEventStore_GetAllEvents(t *testing.T) {
	ctx := context.Background()
	es := NewDynamoEventStore(newFakeDynamo(), "events", "snapshots")

	_, err := es.Append(ctx, "p-1", "Inventory", "StockAdded", nil)
	require.NoError(t, err)
	_, err = es.Append(ctx, "order-1", "Order", "OrderPlaced", nil)
	require.NoError(t, err)

	all, err := es.GetAllEvents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.False(t, all[1].Timestamp.Before(all[0].Timestamp))
}

func TestDynamoEventStore_LostRaceIsConcurrentModification(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	es := NewDynamoEventStore(fake, "events", "snapshots")

	_, err := es.Append(ctx, "order-1", "Order", "OrderPlaced", nil)
	require.NoError(t, err)

	fake.staleReads = true
	_, err = es.Append(ctx, "order-1", "Order", "OrderConfirmed", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConcurrentModification))
}

func TestDynamoEventStore_Snapshots(t *testing.T) {
	ctx := context.Background()
	es := NewDynamoEventStore(newFakeDynamo(), "events", "snapshots")

	snap, err := es.GetSnapshot(ctx, "order-1")
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, es.SaveSnapshot(ctx, &Snapshot{
		AggregateID: "order-1", AggregateType: "Order", Version: 20,
		State: []byte(`{"status":"shipped"}`), CreatedAt: time.Now(),
	}))
	// an older snapshot is silently ignored
	require.NoError(t, es.SaveSnapshot(ctx, &Snapshot{
		AggregateID: "order-1", AggregateType: "Order", Version: 10,
		State: []byte(`{"status":"pending"}`), CreatedAt: time.Now(),
	}))

	snap, err = es.GetSnapshot(ctx, "order-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 20, snap.Version)
	assert.JSONEq(t, `{"status":"shipped"}`, string(snap.State))
	assert.False(t, snap.CreatedAt.IsZero())
}
