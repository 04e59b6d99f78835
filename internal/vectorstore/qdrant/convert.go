package qdrant

import (
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"

	"raglab/internal/domain"
)

const (
	contentKey  = "page_content"
	metadataKey = "metadata"
)

func toPayload(c domain.Chunk) map[string]*pb.Value {
	meta := make(map[string]*pb.Value, len(c.Metadata))
	for k, v := range c.Metadata {
		meta[k] = toValue(v)
	}
	return map[string]*pb.Value{
		contentKey:  {Kind: &pb.Value_StringValue{StringValue: c.Text}},
		metadataKey: {Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: meta}}},
	}
}

func toValue(v any) *pb.Value {
	switch val := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: val}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: val}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int32:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: val}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(val)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: val}}
	case map[string]any:
		fields := make(map[string]*pb.Value, len(val))
		for k, x := range val {
			fields[k] = toValue(x)
		}
		return &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}}
	case []any:
		items := make([]*pb.Value, len(val))
		for i, x := range val {
			items[i] = toValue(x)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: items}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(val)}}
	}
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_StructValue:
		out := make(map[string]any, len(k.StructValue.GetFields()))
		for key, x := range k.StructValue.GetFields() {
			out[key] = fromValue(x)
		}
		return out
	case *pb.Value_ListValue:
		out := make([]any, len(k.ListValue.GetValues()))
		for i, x := range k.ListValue.GetValues() {
			out[i] = fromValue(x)
		}
		return out
	default:
		return nil
	}
}

func fromPayload(payload map[string]*pb.Value) domain.Chunk {
	c := domain.Chunk{Metadata: map[string]any{}}
	if v, ok := payload[contentKey]; ok {
		c.Text = v.GetStringValue()
	}
	if v, ok := payload[metadataKey]; ok {
		if m, ok := fromValue(v).(map[string]any); ok {
			c.Metadata = m
		}
	}
	return c
}

// toFilter builds a must-match filter over metadata fields.
func toFilter(filter map[string]any) *pb.Filter {
	if len(filter) == 0 {
		return nil
	}
	must := make([]*pb.Condition, 0, len(filter))
	for k, v := range filter {
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{Key: metadataKey + "." + k, Match: toMatch(v)},
			},
		})
	}
	return &pb.Filter{Must: must}
}

func toMatch(v any) *pb.Match {
	switch val := v.(type) {
	case bool:
		return &pb.Match{MatchValue: &pb.Match_Boolean{Boolean: val}}
	case int:
		return &pb.Match{MatchValue: &pb.Match_Integer{Integer: int64(val)}}
	case int64:
		return &pb.Match{MatchValue: &pb.Match_Integer{Integer: val}}
	default:
		return &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: fmt.Sprint(val)}}
	}
}

func toDistance(d domain.Distance) pb.Distance {
	switch d {
	case domain.DistanceL2:
		return pb.Distance_Euclid
	case domain.DistanceIP:
		return pb.Distance_Dot
	default:
		return pb.Distance_Cosine
	}
}

// fromDistance maps Qdrant's metric back. Manhattan is a lower-is-closer
// metric like Euclid and is normalised the same way.
func fromDistance(d pb.Distance) domain.Distance {
	switch d {
	case pb.Distance_Euclid, pb.Distance_Manhattan:
		return domain.DistanceL2
	case pb.Distance_Dot:
		return domain.DistanceIP
	default:
		return domain.DistanceCosine
	}
}
