package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/example/clinic-pos/internal/domain/catalog"
	"github.com/example/clinic-pos/internal/domain/loyalty"
	"github.com/example/clinic-pos/internal/domain/order"
	"github.com/example/clinic-pos/internal/domain/stock"
)

const (
	ordersGSI       = "GSI1"
	ordersGSIPK     = "ORDERS"
	dateLayout      = "2006-01-02"
	sortableTime    = "2006-01-02T15:04:05.000000000Z"
	maxTransactItem = 100
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore keeps everything in one DynamoDB table. Checkouts are
// optimistic: batch quantities are read consistently and the commit is a
// single TransactWriteItems call conditioned on the quantities read, so a
// concurrent sale cancels the whole transaction.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

type dynamoProduct struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	ID         string `dynamodbav:"id"`
	Name       string `dynamodbav:"name"`
	Category   string `dynamodbav:"category"`
	HSNSAC     string `dynamodbav:"hsn_sac"`
	GSTRate    string `dynamodbav:"gst_rate"`
	MRP        string `dynamodbav:"mrp"`
	Price      string `dynamodbav:"price"`
	Active     bool   `dynamodbav:"active"`
	Restricted bool   `dynamodbav:"restricted"`
}

type dynamoBatch struct {
	PK         string `dynamodbav:"pk"`
	SK         string `dynamodbav:"sk"`
	BatchID    int64  `dynamodbav:"batch_id"`
	ProductID  string `dynamodbav:"product_id"`
	BatchNo    string `dynamodbav:"batch_no"`
	ExpiresOn  string `dynamodbav:"expires_on,omitempty"`
	Quantity   int    `dynamodbav:"quantity"`
	UnitCost   string `dynamodbav:"unit_cost"`
	ReceivedAt string `dynamodbav:"received_at"`
}

type dynamoOrder struct {
	PK             string `dynamodbav:"pk"`
	SK             string `dynamodbav:"sk"`
	ID             string `dynamodbav:"id"`
	Number         string `dynamodbav:"number"`
	IdempotencyKey string `dynamodbav:"idempotency_key,omitempty"`
	Total          string `dynamodbav:"total"`
	CreatedAt      string `dynamodbav:"created_at"`
	Data           string `dynamodbav:"data"`
	GSI1PK         string `dynamodbav:"gsi1pk"`
	GSI1SK         string `dynamodbav:"gsi1sk"`
}

type dynamoPointer struct {
	PK      string `dynamodbav:"pk"`
	SK      string `dynamodbav:"sk"`
	OrderID string `dynamodbav:"order_id"`
}

type dynamoLoyalty struct {
	CustomerID string `dynamodbav:"customer_id"`
	Points     int64  `dynamodbav:"points"`
	UpdatedAt  string `dynamodbav:"updated_at"`
}

func productKey(id string) (string, string) { return "PRODUCT#" + id, "PRODUCT" }
func batchKey(pid, no string) (string, string) { return "PRODUCT#" + pid, "BATCH#" + no }
func orderKey(id string) (string, string) { return "ORDER#" + id, "ORDER" }
func numberKey(number string) (string, string) { return "ORDERNO#" + number, "ORDERNO" }
func idempotencyKey(key string) (string, string) { return "IDEMPOTENCY#" + key, "IDEMPOTENCY" }
func loyaltyKey(customerID string) (string, string) {
	return "CUSTOMER#" + customerID, "LOYALTY"
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

// NewDynamoClient loads the default AWS configuration. A non-empty endpoint
// points the client at DynamoDB Local.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (s *DynamoStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &dynamoTx{
		store:   s,
		seen:    make(map[int64]*trackedBatch),
		credits: make(map[string]int64),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit(ctx)
}

func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, consistent bool, out any) (bool, error) {
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(pk, sk),
		ConsistentRead: aws.Bool(consistent),
	})
	if err != nil {
		return false, fmt.Errorf("get item %s/%s: %w", pk, sk, err)
	}
	if res.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal item %s/%s: %w", pk, sk, err)
	}
	return true, nil
}

func (s *DynamoStore) Product(ctx context.Context, id string) (*catalog.Product, error) {
	pk, sk := productKey(id)
	var item dynamoProduct
	found, err := s.getItem(ctx, pk, sk, false, &item)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
	}
	p, err := item.toProduct()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *DynamoStore) SaveProduct(ctx context.Context, p catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	pk, sk := productKey(p.ID)
	av, err := attributevalue.MarshalMap(dynamoProduct{
		PK: pk, SK: sk, ID: p.ID, Name: p.Name, Category: string(p.Category), HSNSAC: p.HSNSAC,
		GSTRate: p.GSTRate.String(), MRP: p.MRP.String(), Price: p.Price.String(),
		Active: p.Active, Restricted: p.Restricted,
	})
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

func (s *DynamoStore) queryBatches(ctx context.Context, productID string, consistent bool) ([]dynamoBatch, error) {
	pk, _ := productKey(productID)
	var out []dynamoBatch
	var startKey map[string]types.AttributeValue
	for {
		res, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: pk},
				":prefix": &types.AttributeValueMemberS{Value: "BATCH#"},
			},
			ConsistentRead:    aws.Bool(consistent),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query batches of %s: %w", productID, err)
		}
		for _, item := range res.Items {
			var b dynamoBatch
			if err := attributevalue.UnmarshalMap(item, &b); err != nil {
				return nil, fmt.Errorf("unmarshal batch: %w", err)
			}
			out = append(out, b)
		}
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		startKey = res.LastEvaluatedKey
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchID < out[j].BatchID })
	return out, nil
}

func (s *DynamoStore) Batches(ctx context.Context, productID string) ([]stock.Batch, error) {
	items, err := s.queryBatches(ctx, productID, false)
	if err != nil {
		return nil, err
	}
	out := make([]stock.Batch, 0, len(items))
	for _, item := range items {
		b, err := item.toBatch()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *DynamoStore) OrderByID(ctx context.Context, id string) (*order.Order, error) {
	return s.orderByID(ctx, id, false)
}

func (s *DynamoStore) orderByID(ctx context.Context, id string, consistent bool) (*order.Order, error) {
	pk, sk := orderKey(id)
	var item dynamoOrder
	found, err := s.getItem(ctx, pk, sk, consistent, &item)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	var o order.Order
	if err := json.Unmarshal([]byte(item.Data), &o); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", id, err)
	}
	return &o, nil
}

func (s *DynamoStore) orderByPointer(ctx context.Context, pk, sk string, consistent bool) (*order.Order, error) {
	var ptr dynamoPointer
	found, err := s.getItem(ctx, pk, sk, consistent, &ptr)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pk)
	}
	return s.orderByID(ctx, ptr.OrderID, consistent)
}

func (s *DynamoStore) OrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	pk, sk := numberKey(number)
	return s.orderByPointer(ctx, pk, sk, false)
}

func (s *DynamoStore) OrderByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	pk, sk := idempotencyKey(key)
	return s.orderByPointer(ctx, pk, sk, true)
}

func (s *DynamoStore) LoyaltyAccount(ctx context.Context, customerID string) (*loyalty.Account, error) {
	pk, sk := loyaltyKey(customerID)
	var item dynamoLoyalty
	found, err := s.getItem(ctx, pk, sk, false, &item)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: loyalty account %s", ErrNotFound, customerID)
	}
	updated, _ := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	return &loyalty.Account{CustomerID: customerID, Points: item.Points, UpdatedAt: updated}, nil
}

func (s *DynamoStore) SalesBetween(ctx context.Context, from, to time.Time) (decimal.Decimal, int, error) {
	total := decimal.Zero
	count := 0
	var startKey map[string]types.AttributeValue
	for {
		res, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String(ordersGSI),
			KeyConditionExpression: aws.String("gsi1pk = :pk AND gsi1sk BETWEEN :from AND :to"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":   &types.AttributeValueMemberS{Value: ordersGSIPK},
				":from": &types.AttributeValueMemberS{Value: from.UTC().Format(sortableTime)},
				":to":   &types.AttributeValueMemberS{Value: to.Add(-time.Nanosecond).UTC().Format(sortableTime) + "#~"},
			},
			ProjectionExpression: aws.String("#t"),
			ExpressionAttributeNames: map[string]string{
				"#t": "total",
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return decimal.Zero, 0, fmt.Errorf("query orders: %w", err)
		}
		for _, item := range res.Items {
			var row struct {
				Total string `dynamodbav:"total"`
			}
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				return decimal.Zero, 0, err
			}
			amount, err := decimal.NewFromString(row.Total)
			if err != nil {
				return decimal.Zero, 0, fmt.Errorf("parse order total: %w", err)
			}
			total = total.Add(amount)
			count++
		}
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		startKey = res.LastEvaluatedKey
	}
	return total, count, nil
}

func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)})
	return err
}

func (s *DynamoStore) Close() error {
	return nil
}

// trackedBatch remembers the quantity read for a batch so the commit can be
// conditioned on it.
type trackedBatch struct {
	item     dynamoBatch
	observed int
	exists   bool
	current  int
}

type writeKind int

const (
	writeBatch writeKind = iota
	writeOrder
	writeNumber
	writeIdempotency
	writeLoyalty
)

type dynamoTx struct {
	store   *DynamoStore
	seen    map[int64]*trackedBatch
	orders  []*order.Order
	credits map[string]int64
}

func (t *dynamoTx) Products(ctx context.Context, ids []string) (map[string]catalog.Product, error) {
	out := make(map[string]catalog.Product, len(ids))
	for _, id := range ids {
		pk, sk := productKey(id)
		var item dynamoProduct
		found, err := t.store.getItem(ctx, pk, sk, true, &item)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		p, err := item.toProduct()
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

func (t *dynamoTx) track(item dynamoBatch) *trackedBatch {
	if tb, ok := t.seen[item.BatchID]; ok {
		return tb
	}
	tb := &trackedBatch{item: item, observed: item.Quantity, exists: true, current: item.Quantity}
	t.seen[item.BatchID] = tb
	return tb
}

func (t *dynamoTx) LockBatches(ctx context.Context, productIDs []string) (map[string][]stock.Batch, error) {
	out := make(map[string][]stock.Batch, len(productIDs))
	for _, pid := range productIDs {
		items, err := t.store.queryBatches(ctx, pid, true)
		if err != nil {
			return nil, err
		}
		batches := make([]stock.Batch, 0, len(items))
		for _, item := range items {
			tb := t.track(item)
			b, err := tb.item.toBatch()
			if err != nil {
				return nil, err
			}
			b.Quantity = tb.current
			batches = append(batches, b)
		}
		out[pid] = batches
	}
	return out, nil
}

func (t *dynamoTx) DecrementBatch(ctx context.Context, batchID int64, quantity int) error {
	tb, ok := t.seen[batchID]
	if !ok {
		return fmt.Errorf("%w: batch %d was not read in this transaction", ErrNotFound, batchID)
	}
	if tb.current < quantity {
		return fmt.Errorf("%w: batch %d has %d, decrement %d", ErrConflict, batchID, tb.current, quantity)
	}
	tb.current -= quantity
	return nil
}

func (t *dynamoTx) ReceiveBatch(ctx context.Context, b stock.Batch) (stock.Batch, error) {
	for _, tb := range t.seen {
		if tb.item.ProductID == b.ProductID && tb.item.BatchNo == b.BatchNo {
			tb.current += b.Quantity
			out, err := tb.item.toBatch()
			out.Quantity = tb.current
			return out, err
		}
	}

	pk, sk := batchKey(b.ProductID, b.BatchNo)
	var existing dynamoBatch
	found, err := t.store.getItem(ctx, pk, sk, true, &existing)
	if err != nil {
		return stock.Batch{}, err
	}
	if found {
		tb := t.track(existing)
		tb.current += b.Quantity
		out, err := tb.item.toBatch()
		out.Quantity = tb.current
		return out, err
	}

	item := newDynamoBatch(b)
	t.seen[b.ID] = &trackedBatch{item: item, current: b.Quantity}
	return b, nil
}

func (t *dynamoTx) OrderByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	for _, o := range t.orders {
		if o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return t.store.OrderByIdempotencyKey(ctx, key)
}

func (t *dynamoTx) InsertOrder(ctx context.Context, o *order.Order) error {
	for _, pending := range t.orders {
		if o.IdempotencyKey != "" && pending.IdempotencyKey == o.IdempotencyKey {
			return fmt.Errorf("%w: %s", ErrDuplicate, o.IdempotencyKey)
		}
	}
	cp := *o
	t.orders = append(t.orders, &cp)
	return nil
}

func (t *dynamoTx) CreditLoyalty(ctx context.Context, customerID string, points int64) error {
	if points < 0 {
		return loyalty.ErrInvalidPoints
	}
	t.credits[customerID] += points
	return nil
}

// writes builds the transaction items in a fixed order together with the
// kind of each item, so cancellation reasons can be attributed.
func (t *dynamoTx) writes() ([]types.TransactWriteItem, []writeKind, error) {
	table := aws.String(t.store.tableName)
	var items []types.TransactWriteItem
	var kinds []writeKind

	ids := make([]int64, 0, len(t.seen))
	for id := range t.seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		tb := t.seen[id]
		switch {
		case !tb.exists:
			tb.item.Quantity = tb.current
			av, err := attributevalue.MarshalMap(tb.item)
			if err != nil {
				return nil, nil, fmt.Errorf("marshal batch: %w", err)
			}
			items = append(items, types.TransactWriteItem{Put: &types.Put{
				TableName:           table,
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}})
		case tb.current != tb.observed:
			items = append(items, types.TransactWriteItem{Update: &types.Update{
				TableName:           table,
				Key:                 itemKey(tb.item.PK, tb.item.SK),
				UpdateExpression:    aws.String("SET quantity = :next"),
				ConditionExpression: aws.String("quantity = :expected"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":next":     &types.AttributeValueMemberN{Value: strconv.Itoa(tb.current)},
					":expected": &types.AttributeValueMemberN{Value: strconv.Itoa(tb.observed)},
				},
			}})
		default:
			continue
		}
		kinds = append(kinds, writeBatch)
	}

	for _, o := range t.orders {
		data, err := json.Marshal(o)
		if err != nil {
			return nil, nil, fmt.Errorf("encode order: %w", err)
		}
		created := o.CreatedAt.UTC().Format(sortableTime)
		pk, sk := orderKey(o.ID)
		orderItem, err := attributevalue.MarshalMap(dynamoOrder{
			PK: pk, SK: sk, ID: o.ID, Number: o.Number, IdempotencyKey: o.IdempotencyKey,
			Total: o.Total.String(), CreatedAt: created, Data: string(data),
			GSI1PK: ordersGSIPK, GSI1SK: created + "#" + o.ID,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("marshal order: %w", err)
		}
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName:           table,
			Item:                orderItem,
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		}})
		kinds = append(kinds, writeOrder)

		npk, nsk := numberKey(o.Number)
		numberItem, err := attributevalue.MarshalMap(dynamoPointer{PK: npk, SK: nsk, OrderID: o.ID})
		if err != nil {
			return nil, nil, err
		}
		items = append(items, types.TransactWriteItem{Put: &types.Put{
			TableName:           table,
			Item:                numberItem,
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		}})
		kinds = append(kinds, writeNumber)

		if o.IdempotencyKey != "" {
			ipk, isk := idempotencyKey(o.IdempotencyKey)
			keyItem, err := attributevalue.MarshalMap(dynamoPointer{PK: ipk, SK: isk, OrderID: o.ID})
			if err != nil {
				return nil, nil, err
			}
			items = append(items, types.TransactWriteItem{Put: &types.Put{
				TableName:           table,
				Item:                keyItem,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}})
			kinds = append(kinds, writeIdempotency)
		}
	}

	customers := make([]string, 0, len(t.credits))
	for c := range t.credits {
		customers = append(customers, c)
	}
	sort.Strings(customers)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, c := range customers {
		pk, sk := loyaltyKey(c)
		items = append(items, types.TransactWriteItem{Update: &types.Update{
			TableName:        table,
			Key:              itemKey(pk, sk),
			UpdateExpression: aws.String("ADD points :p SET customer_id = :c, updated_at = :u"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":p": &types.AttributeValueMemberN{Value: strconv.FormatInt(t.credits[c], 10)},
				":c": &types.AttributeValueMemberS{Value: c},
				":u": &types.AttributeValueMemberS{Value: now},
			},
		}})
		kinds = append(kinds, writeLoyalty)
	}

	if len(items) > maxTransactItem {
		return nil, nil, fmt.Errorf("transaction needs %d writes, limit is %d", len(items), maxTransactItem)
	}
	return items, kinds, nil
}

func (t *dynamoTx) commit(ctx context.Context) error {
	items, kinds, err := t.writes()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	_, err = t.store.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err == nil {
		return nil
	}
	return classifyDynamoError(err, kinds)
}

// classifyDynamoError maps a cancelled transaction onto ErrDuplicate when the
// idempotency key was already taken and ErrConflict for every other
// condition or transaction conflict.
func classifyDynamoError(err error, kinds []writeKind) error {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for i, reason := range canceled.CancellationReasons {
			code := aws.ToString(reason.Code)
			if code == "ConditionalCheckFailed" && i < len(kinds) && kinds[i] == writeIdempotency {
				return fmt.Errorf("%w: %s", ErrDuplicate, aws.ToString(canceled.Message))
			}
		}
		return fmt.Errorf("%w: %s", ErrConflict, aws.ToString(canceled.Message))
	}

	var inProgress *types.TransactionInProgressException
	var conflict *types.TransactionConflictException
	if errors.As(err, &inProgress) || errors.As(err, &conflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return fmt.Errorf("transact write: %w", err)
}

func newDynamoBatch(b stock.Batch) dynamoBatch {
	pk, sk := batchKey(b.ProductID, b.BatchNo)
	item := dynamoBatch{
		PK: pk, SK: sk, BatchID: b.ID, ProductID: b.ProductID, BatchNo: b.BatchNo,
		Quantity: b.Quantity, UnitCost: b.UnitCost.String(),
		ReceivedAt: b.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
	if b.ExpiresOn != nil {
		item.ExpiresOn = b.ExpiresOn.Format(dateLayout)
	}
	return item
}

func (d dynamoBatch) toBatch() (stock.Batch, error) {
	b := stock.Batch{
		ID:        d.BatchID,
		ProductID: d.ProductID,
		BatchNo:   d.BatchNo,
		Quantity:  d.Quantity,
	}
	if d.ExpiresOn != "" {
		exp, err := time.Parse(dateLayout, d.ExpiresOn)
		if err != nil {
			return stock.Batch{}, fmt.Errorf("parse expiry of batch %d: %w", d.BatchID, err)
		}
		b.ExpiresOn = &exp
	}
	if d.UnitCost != "" {
		cost, err := decimal.NewFromString(d.UnitCost)
		if err != nil {
			return stock.Batch{}, fmt.Errorf("parse unit cost of batch %d: %w", d.BatchID, err)
		}
		b.UnitCost = cost
	}
	b.ReceivedAt, _ = time.Parse(time.RFC3339Nano, d.ReceivedAt)
	return b, nil
}

func (d dynamoProduct) toProduct() (catalog.Product, error) {
	p := catalog.Product{
		ID:         d.ID,
		Name:       d.Name,
		Category:   catalog.Category(d.Category),
		HSNSAC:     d.HSNSAC,
		Active:     d.Active,
		Restricted: d.Restricted,
	}
	var err error
	if p.GSTRate, err = parseDecimal(d.GSTRate); err != nil {
		return p, fmt.Errorf("product %s gst rate: %w", d.ID, err)
	}
	if p.MRP, err = parseDecimal(d.MRP); err != nil {
		return p, fmt.Errorf("product %s mrp: %w", d.ID, err)
	}
	if p.Price, err = parseDecimal(d.Price); err != nil {
		return p, fmt.Errorf("product %s price: %w", d.ID, err)
	}
	return p, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
