package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/oodb/pagestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStore_Get(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	t.Run("NotFound", func(t *testing.T) {
		mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
			return *input.Bucket == "test-bucket" && *input.Key == "prefix/foo"
		})).Return(nil, &types.NoSuchKey{}).Once()

		_, err := store.Get(context.Background(), "foo")
		assert.ErrorIs(t, err, pagestore.ErrNotFound)
	})

	t.Run("Success", func(t *testing.T) {
		mockClient.On("GetObject", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
			return *input.Key == "prefix/records/1"
		})).Return(&s3.GetObjectOutput{
			Body: io.NopCloser(strings.NewReader("hello")),
		}, nil).Once()

		data, err := store.Get(context.Background(), "records/1")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})

	mockClient.AssertExpectations(t)
}

func TestStore_Put(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	var body string
	mockClient.On("PutObject", mock.Anything, mock.MatchedBy(func(input *s3.PutObjectInput) bool {
		return *input.Bucket == "test-bucket" && *input.Key == "prefix/index/objects/0000000000000001"
	})).Run(func(args mock.Arguments) {
		input := args.Get(1).(*s3.PutObjectInput)
		b, _ := io.ReadAll(input.Body)
		body = string(b)
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, store.Put(context.Background(), "index/objects/0000000000000001", []byte("page")))
	assert.Equal(t, "page", body)
	mockClient.AssertExpectations(t)
}

func TestStore_Delete(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix")

	mockClient.On("DeleteObject", mock.Anything, mock.MatchedBy(func(input *s3.DeleteObjectInput) bool {
		return *input.Key == "prefix/del"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()
	mockClient.On("DeleteObject", mock.Anything, mock.MatchedBy(func(input *s3.DeleteObjectInput) bool {
		return *input.Key == "prefix/gone"
	})).Return(nil, &types.NotFound{}).Once()

	assert.NoError(t, store.Delete(context.Background(), "del"))
	assert.NoError(t, store.Delete(context.Background(), "gone"))
	mockClient.AssertExpectations(t)
}

func TestStore_ListPagination(t *testing.T) {
	mockClient := new(MockS3Client)
	store := NewStore(mockClient, "test-bucket", "prefix/")

	mockClient.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(input *s3.ListObjectsV2Input) bool {
		return input.ContinuationToken == nil && *input.Prefix == "prefix/records/"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("token"),
		Contents:              []types.Object{{Key: aws.String("prefix/records/2")}},
	}, nil).Once()
	mockClient.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(input *s3.ListObjectsV2Input) bool {
		return input.ContinuationToken != nil && *input.ContinuationToken == "token"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(false),
		Contents:    []types.Object{{Key: aws.String("prefix/records/1")}},
	}, nil).Once()

	names, err := store.List(context.Background(), "records/")
	require.NoError(t, err)
	assert.Equal(t, []string{"records/1", "records/2"}, names)
	mockClient.AssertExpectations(t)
}

func commitItem(version, target string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"base_uri": &ddbtypes.AttributeValueMemberS{Value: "s3://b/p"},
		"version":  &ddbtypes.AttributeValueMemberN{Value: version},
		"target":   &ddbtypes.AttributeValueMemberS{Value: target},
	}
}

func TestCommitStore_Pointer(t *testing.T) {
	ctx := context.Background()
	ddb := new(MockDDBClient)
	blobs := pagestore.NewMemoryStore()
	store := NewCommitStore(blobs, ddb, "oodb-commits", "s3://b/p")

	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil).Once()
	_, err := store.Get(ctx, PointerName)
	assert.ErrorIs(t, err, pagestore.ErrNotFound)

	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]ddbtypes.AttributeValue{commitItem("3", "MANIFEST-000003.json")},
	}, nil).Once()
	ddb.On("PutItem", mock.Anything, mock.MatchedBy(func(input *dynamodb.PutItemInput) bool {
		v, ok := input.Item["version"].(*ddbtypes.AttributeValueMemberN)
		return ok && v.Value == "4" && *input.ConditionExpression == "attribute_not_exists(version)"
	})).Return(&dynamodb.PutItemOutput{}, nil).Once()
	require.NoError(t, store.Put(ctx, PointerName, []byte("MANIFEST-000004.json")))

	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]ddbtypes.AttributeValue{commitItem("4", "MANIFEST-000004.json")},
	}, nil).Once()
	got, err := store.Get(ctx, PointerName)
	require.NoError(t, err)
	assert.Equal(t, "MANIFEST-000004.json", string(got))

	require.NoError(t, store.Put(ctx, "MANIFEST-000004.json", []byte("{}")))
	_, err = blobs.Get(ctx, "MANIFEST-000004.json")
	assert.NoError(t, err, "other blobs go to the wrapped store")

	ddb.AssertExpectations(t)
}

func TestCommitStore_Conflict(t *testing.T) {
	ddb := new(MockDDBClient)
	store := NewCommitStore(pagestore.NewMemoryStore(), ddb, "t", "s3://b/p")

	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil).Once()
	ddb.On("PutItem", mock.Anything, mock.Anything).Return(nil, &ddbtypes.ConditionalCheckFailedException{}).Once()

	err := store.Put(context.Background(), PointerName, []byte("MANIFEST-000001.json"))
	assert.ErrorIs(t, err, ErrConcurrentModification)

	ddb.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Once()
	err = store.Put(context.Background(), PointerName, []byte("MANIFEST-000001.json"))
	assert.ErrorContains(t, err, "throttled")
}
