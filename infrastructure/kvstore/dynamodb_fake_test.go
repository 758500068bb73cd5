package kvstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type attrs = map[string]types.AttributeValue

// fakeDynamo is an in-memory single table keyed by PK/SK. It evaluates the
// condition, key-condition and update expressions the expression builder emits.
type fakeDynamo struct {
	mu    sync.Mutex
	rows  map[string]attrs
	calls map[string]int

	// throttleBatches makes the next N BatchWriteItem calls process only their
	// first request and hand the rest back as unprocessed.
	throttleBatches int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{rows: make(map[string]attrs), calls: make(map[string]int)}
}

func stringAttr(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func rowKey(key attrs) string {
	return stringAttr(key["PK"]) + "\x00" + stringAttr(key["SK"])
}

func copyAttrs(in attrs) attrs {
	out := make(attrs, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

// checkCondition evaluates an optional condition against the current row, or an empty row when absent
func (f *fakeDynamo) checkCondition(current attrs, expr *string, names map[string]string, values attrs) error {
	if expr == nil {
		return nil
	}
	if current == nil {
		current = attrs{}
	}
	ok, err := evalCondition(*expr, current, names, values)
	if err != nil {
		return err
	}
	if !ok {
		return conditionFailed()
	}
	return nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetItem"]++

	row, ok := f.rows[rowKey(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyAttrs(row)}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["PutItem"]++

	key := rowKey(params.Item)
	if err := f.checkCondition(f.rows[key], params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	f.rows[key] = copyAttrs(params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DeleteItem"]++

	key := rowKey(params.Key)
	if err := f.checkCondition(f.rows[key], params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	delete(f.rows, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UpdateItem"]++

	key := rowKey(params.Key)
	current := f.rows[key]
	if err := f.checkCondition(current, params.ConditionExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
		return nil, err
	}

	// UpdateItem upserts
	row := copyAttrs(params.Key)
	for k, v := range current {
		row[k] = v
	}
	if params.UpdateExpression != nil {
		if err := applyUpdate(*params.UpdateExpression, row, params.ExpressionAttributeNames, params.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	f.rows[key] = row
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Query"]++

	if params.KeyConditionExpression == nil {
		return nil, fmt.Errorf("query requires a key condition")
	}

	var items []attrs
	for _, row := range f.rows {
		ok, err := evalCondition(*params.KeyConditionExpression, row, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if ok {
			items = append(items, copyAttrs(row))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return stringAttr(items[i]["SK"]) < stringAttr(items[j]["SK"])
	})

	return &dynamodb.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["BatchWriteItem"]++

	unprocessed := make(map[string][]types.WriteRequest)
	for table, requests := range params.RequestItems {
		if len(requests) > 25 {
			return nil, fmt.Errorf("too many items in batch: %d", len(requests))
		}
		if f.throttleBatches > 0 && len(requests) > 1 {
			unprocessed[table] = requests[1:]
			requests = requests[:1]
		}
		for _, req := range requests {
			switch {
			case req.DeleteRequest != nil:
				delete(f.rows, rowKey(req.DeleteRequest.Key))
			case req.PutRequest != nil:
				f.rows[rowKey(req.PutRequest.Item)] = copyAttrs(req.PutRequest.Item)
			}
		}
	}
	if f.throttleBatches > 0 {
		f.throttleBatches--
	}
	return &dynamodb.BatchWriteItemOutput{UnprocessedItems: unprocessed}, nil
}

func (f *fakeDynamo) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DescribeTable"]++

	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableName: params.TableName, TableStatus: types.TableStatusActive},
	}, nil
}

func (f *fakeDynamo) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

var _ DynamoDBAPI = (*fakeDynamo)(nil)

func tokenize(expr string) []string {
	var tokens []string
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}

	runes := []rune(expr)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			flush()
		case r == '(' || r == ')' || r == ',':
			flush()
			tokens = append(tokens, string(r))
		case r == '=' || r == '<' || r == '>':
			flush()
			op := string(r)
			if i+1 < len(runes) && (runes[i+1] == '=' || runes[i+1] == '>') && r != '=' {
				op += string(runes[i+1])
				i++
			}
			tokens = append(tokens, op)
		default:
			word.WriteRune(r)
		}
	}
	flush()
	return tokens
}

type exprParser struct {
	tokens []string
	pos    int
	row    attrs
	names  map[string]string
	values attrs
}

func (p *exprParser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *exprParser) next() string {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *exprParser) expect(tok string) {
	if got := p.next(); got != tok {
		panic(fmt.Sprintf("expected %q, got %q", tok, got))
	}
}

func (p *exprParser) name(tok string) string {
	if strings.HasPrefix(tok, "#") {
		name, ok := p.names[tok]
		if !ok {
			panic(fmt.Sprintf("undefined attribute name %s", tok))
		}
		return name
	}
	return tok
}

// operand resolves a name placeholder to the row's attribute and a value placeholder to its value.
// A missing attribute resolves to nil.
func (p *exprParser) operand(tok string) types.AttributeValue {
	if strings.HasPrefix(tok, ":") {
		v, ok := p.values[tok]
		if !ok {
			panic(fmt.Sprintf("undefined attribute value %s", tok))
		}
		return v
	}
	return p.row[p.name(tok)]
}

func (p *exprParser) parseOr() bool {
	v := p.parseAnd()
	for strings.EqualFold(p.peek(), "OR") {
		p.next()
		r := p.parseAnd()
		v = v || r
	}
	return v
}

func (p *exprParser) parseAnd() bool {
	v := p.parseUnary()
	for strings.EqualFold(p.peek(), "AND") {
		p.next()
		r := p.parseUnary()
		v = v && r
	}
	return v
}

func (p *exprParser) parseUnary() bool {
	if strings.EqualFold(p.peek(), "NOT") {
		p.next()
		return !p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() bool {
	tok := p.next()
	switch tok {
	case "(":
		v := p.parseOr()
		p.expect(")")
		return v
	case "attribute_exists", "attribute_not_exists":
		p.expect("(")
		_, present := p.row[p.name(p.next())]
		p.expect(")")
		return present == (tok == "attribute_exists")
	case "begins_with":
		p.expect("(")
		subject := p.operand(p.next())
		p.expect(",")
		prefix := p.operand(p.next())
		p.expect(")")
		return subject != nil && strings.HasPrefix(stringAttr(subject), stringAttr(prefix))
	}

	left := p.operand(tok)
	op := p.next()
	right := p.operand(p.next())
	return compareAttrs(left, op, right)
}

func compareAttrs(left types.AttributeValue, op string, right types.AttributeValue) bool {
	if left == nil || right == nil {
		return false
	}

	var cmp int
	switch l := left.(type) {
	case *types.AttributeValueMemberS:
		r, ok := right.(*types.AttributeValueMemberS)
		if !ok {
			return false
		}
		cmp = strings.Compare(l.Value, r.Value)
	case *types.AttributeValueMemberB:
		r, ok := right.(*types.AttributeValueMemberB)
		if !ok {
			return false
		}
		cmp = bytes.Compare(l.Value, r.Value)
	case *types.AttributeValueMemberN:
		r, ok := right.(*types.AttributeValueMemberN)
		if !ok {
			return false
		}
		lf, err1 := strconv.ParseFloat(l.Value, 64)
		rf, err2 := strconv.ParseFloat(r.Value, 64)
		if err1 != nil || err2 != nil {
			return false
		}
		switch {
		case lf < rf:
			cmp = -1
		case lf > rf:
			cmp = 1
		}
	default:
		return false
	}

	switch op {
	case "=":
		return cmp == 0
	case "<>":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	panic(fmt.Sprintf("unsupported comparator %q", op))
}

func evalCondition(expr string, row attrs, names map[string]string, values attrs) (ok bool, err error) {
	p := &exprParser{tokens: tokenize(expr), row: row, names: names, values: values}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid expression %q: %v", expr, r)
		}
	}()

	ok = p.parseOr()
	if p.pos != len(p.tokens) {
		return false, fmt.Errorf("invalid expression %q: trailing %q", expr, p.peek())
	}
	return ok, nil
}

// applyUpdate supports the SET and REMOVE clauses
func applyUpdate(expr string, row attrs, names map[string]string, values attrs) (err error) {
	p := &exprParser{tokens: tokenize(expr), row: row, names: names, values: values}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid update %q: %v", expr, r)
		}
	}()

	for p.peek() != "" {
		clause := strings.ToUpper(p.next())
		for {
			path := p.name(p.next())
			switch clause {
			case "SET":
				p.expect("=")
				row[path] = p.operand(p.next())
			case "REMOVE":
				delete(row, path)
			default:
				return fmt.Errorf("unsupported update clause %q", clause)
			}
			if p.peek() != "," {
				break
			}
			p.next()
		}
	}
	return nil
}
