package storage

import (
	"context"
	"regexp"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo stores items keyed by PK/SK and understands the SET/ADD update
// expressions the repository builds.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(key map[string]types.AttributeValue) string {
	pk := key["PK"].(*types.AttributeValueMemberS).Value
	sk := key["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

var placeholderPair = regexp.MustCompile(`(#\w+)\s*=?\s*(:\w+)`)

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := itemKey(in.Key)
	item, ok := f.items[k]
	if !ok {
		item = map[string]types.AttributeValue{"PK": in.Key["PK"], "SK": in.Key["SK"]}
		f.items[k] = item
	}

	for _, m := range placeholderPair.FindAllStringSubmatch(*in.UpdateExpression, -1) {
		name := in.ExpressionAttributeNames[m[1]]
		value := in.ExpressionAttributeValues[m[2]]
		if n, isNum := value.(*types.AttributeValueMemberN); isNum {
			delta, _ := strconv.ParseInt(n.Value, 10, 64)
			var cur int64
			if existing, ok := item[name].(*types.AttributeValueMemberN); ok {
				cur, _ = strconv.ParseInt(existing.Value, 10, 64)
			}
			item[name] = &types.AttributeValueMemberN{Value: strconv.FormatInt(cur+delta, 10)}
			continue
		}
		item[name] = value
	}
	return &dynamodb.UpdateItemOutput{}, nil
}
