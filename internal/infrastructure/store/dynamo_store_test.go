package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/clinic-pos/internal/domain/catalog"
	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/domain/payment"
	"github.com/example/clinic-pos/internal/domain/stock"
)

// fakeDynamo understands exactly the key conditions, condition expressions
// and update expressions DynamoStore issues.
type fakeDynamo struct {
	mu             sync.Mutex
	items          map[string]map[string]types.AttributeValue
	TransactCalls  []*dynamodb.TransactWriteItemsInput
	BeforeTransact func(f *fakeDynamo)
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func str(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	}
	return ""
}

func keyOf(item map[string]types.AttributeValue) string {
	return str(item["pk"]) + "|" + str(item["sk"])
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *fakeDynamo) setQuantity(pk, sk string, q int) {
	f.items[pk+"|"+sk]["quantity"] = &types.AttributeValueMemberN{Value: strconv.Itoa(q)}
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[keyOf(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[keyOf(in.Item)] = copyItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vals := in.ExpressionAttributeValues
	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if in.IndexName != nil {
			sk := str(item["gsi1sk"])
			if str(item["gsi1pk"]) == str(vals[":pk"]) && sk >= str(vals[":from"]) && sk <= str(vals[":to"]) {
				out = append(out, copyItem(item))
			}
			continue
		}
		if str(item["pk"]) == str(vals[":pk"]) && strings.HasPrefix(str(item["sk"]), str(vals[":prefix"])) {
			out = append(out, copyItem(item))
		}
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeDynamo) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TransactCalls = append(f.TransactCalls, in)
	if f.BeforeTransact != nil {
		f.BeforeTransact(f)
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		switch {
		case ti.Put != nil:
			if _, exists := f.items[keyOf(ti.Put.Item)]; exists {
				reasons[i].Code = aws.String("ConditionalCheckFailed")
				failed = true
			}
		case ti.Update != nil && ti.Update.ConditionExpression != nil:
			item, ok := f.items[keyOf(ti.Update.Key)]
			if !ok || str(item["quantity"]) != str(ti.Update.ExpressionAttributeValues[":expected"]) {
				reasons[i].Code = aws.String("ConditionalCheckFailed")
				failed = true
			}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		switch {
		case ti.Put != nil:
			f.items[keyOf(ti.Put.Item)] = copyItem(ti.Put.Item)
		case ti.Update != nil:
			k := keyOf(ti.Update.Key)
			item, ok := f.items[k]
			if !ok {
				item = copyItem(ti.Update.Key)
				f.items[k] = item
			}
			vals := ti.Update.ExpressionAttributeValues
			if strings.HasPrefix(aws.ToString(ti.Update.UpdateExpression), "SET quantity") {
				item["quantity"] = vals[":next"]
				continue
			}
			current, _ := strconv.ParseInt(str(item["points"]), 10, 64)
			add, _ := strconv.ParseInt(str(vals[":p"]), 10, 64)
			item["points"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(current+add, 10)}
			item["customer_id"] = vals[":c"]
			item["updated_at"] = vals[":u"]
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func seedDynamo(t *testing.T) (*DynamoStore, *fakeDynamo) {
	t.Helper()
	fake := newFakeDynamo()
	s := NewDynamoStore(fake, "clinic-pos")
	ctx := context.Background()

	require.NoError(t, s.SaveProduct(ctx, catalog.Product{
		ID: "P1", Name: "Contact lens solution", Category: catalog.CategoryContactLens,
		GSTRate: decimal.NewFromInt(12), Price: decimal.RequireFromString("250.00"), Active: true,
	}))
	expiry := time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.ReceiveBatch(ctx, stock.Batch{
			ID: 100, ProductID: "P1", BatchNo: "L-1", ExpiresOn: &expiry, Quantity: 10,
			UnitCost: decimal.RequireFromString("120.50"), ReceivedAt: time.Now(),
		})
		return err
	}))
	return s, fake
}

func dynamoOrderFixture(key string) *order.Order {
	return &order.Order{
		ID: "o-" + key, Number: "INV-" + key, IdempotencyKey: key, CustomerID: "C1",
		Subtotal: decimal.RequireFromString("500.00"), Tax: decimal.RequireFromString("60.00"),
		Discount: decimal.Zero, Total: decimal.RequireFromString("560.00"),
		Paid: decimal.RequireFromString("560.00"), Status: payment.StatusPaid,
		CreatedAt: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
		Lines: []order.Line{{
			ProductID: "P1", Quantity: 2,
			Allocations: []stock.Allocation{{BatchID: 100, BatchNo: "L-1", Quantity: 2}},
		}},
	}
}

func checkoutInDynamo(s *DynamoStore, o *order.Order) error {
	return s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockBatches(ctx, []string{"P1"}); err != nil {
			return err
		}
		if err := tx.DecrementBatch(ctx, 100, 2); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		return tx.CreditLoyalty(ctx, o.CustomerID, 5)
	})
}

// ============================================
// Round Trip Tests
// ============================================

func TestDynamoStore_CheckoutCommitsAtomically(t *testing.T) {
	s, fake := seedDynamo(t)
	ctx := context.Background()

	require.NoError(t, checkoutInDynamo(s, dynamoOrderFixture("k1")))

	last := fake.TransactCalls[len(fake.TransactCalls)-1]
	assert.Len(t, last.TransactItems, 5)

	batches, err := s.Batches(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 8, batches[0].Quantity)
	assert.True(t, batches[0].UnitCost.Equal(decimal.RequireFromString("120.50")))
	require.NotNil(t, batches[0].ExpiresOn)

	o, err := s.OrderByNumber(ctx, "INV-k1")
	require.NoError(t, err)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("560")))
	assert.Len(t, o.Lines, 1)

	o, err = s.OrderByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "o-k1", o.ID)

	acc, err := s.LoyaltyAccount(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), acc.Points)

	day := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	total, count, err := s.SalesBetween(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, total.Equal(decimal.RequireFromString("560")))
}

func TestDynamoStore_ConcurrentWriterCausesConflict(t *testing.T) {
	s, fake := seedDynamo(t)
	pk, sk := batchKey("P1", "L-1")
	fake.BeforeTransact = func(f *fakeDynamo) {
		f.setQuantity(pk, sk, 9)
	}

	err := checkoutInDynamo(s, dynamoOrderFixture("k2"))

	assert.ErrorIs(t, err, ErrConflict)
	fake.BeforeTransact = nil
	_, err = s.OrderByID(context.Background(), "o-k2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoStore_DuplicateIdempotencyKey(t *testing.T) {
	s, _ := seedDynamo(t)
	require.NoError(t, checkoutInDynamo(s, dynamoOrderFixture("k3")))

	second := dynamoOrderFixture("k3")
	second.ID = "o-other"
	second.Number = "INV-other"
	err := checkoutInDynamo(s, second)

	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestDynamoStore_DecrementRequiresRead(t *testing.T) {
	s, _ := seedDynamo(t)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.DecrementBatch(ctx, 100, 1)
	})

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoStore_DecrementBeyondObservedIsConflict(t *testing.T) {
	s, fake := seedDynamo(t)
	calls := len(fake.TransactCalls)

	err := s.WithinTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockBatches(ctx, []string{"P1"}); err != nil {
			return err
		}
		return tx.DecrementBatch(ctx, 100, 11)
	})

	assert.ErrorIs(t, err, ErrConflict)
	assert.Len(t, fake.TransactCalls, calls)
}

func TestDynamoStore_ReceiveMergesExistingBatch(t *testing.T) {
	s, _ := seedDynamo(t)
	ctx := context.Background()

	var merged stock.Batch
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		merged, err = tx.ReceiveBatch(ctx, stock.Batch{ID: 555, ProductID: "P1", BatchNo: "L-1", Quantity: 5})
		return err
	}))

	assert.Equal(t, int64(100), merged.ID)
	assert.Equal(t, 15, merged.Quantity)
	batches, _ := s.Batches(ctx, "P1")
	require.Len(t, batches, 1)
	assert.Equal(t, 15, batches[0].Quantity)
}

func TestDynamoStore_ProductRoundTrip(t *testing.T) {
	s, _ := seedDynamo(t)

	p, err := s.Product(context.Background(), "P1")

	require.NoError(t, err)
	assert.Equal(t, catalog.CategoryContactLens, p.Category)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("250")))

	_, err = s.Product(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================
// Error Classification Tests
// ============================================

func TestClassifyDynamoError(t *testing.T) {
	kinds := []writeKind{writeBatch, writeOrder, writeNumber, writeIdempotency}
	reasons := func(failedAt int) []types.CancellationReason {
		out := make([]types.CancellationReason, len(kinds))
		for i := range out {
			out[i] = types.CancellationReason{Code: aws.String("None")}
		}
		out[failedAt].Code = aws.String("ConditionalCheckFailed")
		return out
	}

	err := classifyDynamoError(&types.TransactionCanceledException{CancellationReasons: reasons(3)}, kinds)
	assert.ErrorIs(t, err, ErrDuplicate)

	err = classifyDynamoError(&types.TransactionCanceledException{CancellationReasons: reasons(0)}, kinds)
	assert.ErrorIs(t, err, ErrConflict)

	err = classifyDynamoError(&types.TransactionConflictException{}, kinds)
	assert.ErrorIs(t, err, ErrConflict)

	boom := errors.New("throttled")
	err = classifyDynamoError(boom, kinds)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrConflict)
}
