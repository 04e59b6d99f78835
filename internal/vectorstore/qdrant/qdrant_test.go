package qdrant

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"raglab/internal/domain"
	"raglab/internal/embedding/hashing"
)

type fakeCollections struct {
	pb.CollectionsClient
	existing map[string]bool
	created  []*pb.CreateCollection
	gets     int
}

// Get reports the distance a collection was created with, cosine otherwise.
func (f *fakeCollections) Get(_ context.Context, in *pb.GetCollectionInfoRequest, _ ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	f.gets++
	params := &pb.VectorParams{Size: 16, Distance: pb.Distance_Cosine}
	for _, c := range f.created {
		if c.GetCollectionName() == in.GetCollectionName() {
			params = c.GetVectorsConfig().GetParams()
		}
	}
	return &pb.GetCollectionInfoResponse{Result: &pb.CollectionInfo{
		Config: &pb.CollectionConfig{Params: &pb.CollectionParams{
			VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: params}},
		}},
	}}, nil
}

func (f *fakeCollections) CollectionExists(_ context.Context, in *pb.CollectionExistsRequest, _ ...grpc.CallOption) (*pb.CollectionExistsResponse, error) {
	return &pb.CollectionExistsResponse{Result: &pb.CollectionExists{Exists: f.existing[in.GetCollectionName()]}}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.created = append(f.created, in)
	f.existing[in.GetCollectionName()] = true
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeCollections) Delete(_ context.Context, in *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	delete(f.existing, in.GetCollectionName())
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeCollections) List(context.Context, *pb.ListCollectionsRequest, ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	resp := &pb.ListCollectionsResponse{}
	for name := range f.existing {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: name})
	}
	return resp, nil
}

type fakePoints struct {
	pb.PointsClient
	upserts  []*pb.UpsertPoints
	searches []*pb.SearchPoints
	deletes  []*pb.DeletePoints
	result   []*pb.ScoredPoint
	err      error
}

func (f *fakePoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.deletes = append(f.deletes, in)
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.upserts = append(f.upserts, in)
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	f.searches = append(f.searches, in)
	if f.err != nil {
		return nil, f.err
	}
	return &pb.SearchResponse{Result: f.result}, nil
}

func (f *fakePoints) Count(context.Context, *pb.CountPoints, ...grpc.CallOption) (*pb.CountResponse, error) {
	return &pb.CountResponse{Result: &pb.CountResult{Count: 7}}, nil
}

func newFake() (*Storage, *fakePoints, *fakeCollections) {
	p := &fakePoints{}
	c := &fakeCollections{existing: map[string]bool{}}
	return newWithClients(p, c, domain.DistanceCosine, hashing.NewEmbedder(16), nil), p, c
}

func TestUpsertCreatesMissingCollection(t *testing.T) {
	s, p, c := newFake()
	err := s.Upsert(t.Context(), "docs", []domain.Chunk{
		{Text: "first chunk", Metadata: map[string]any{"source": "a.pdf", "page": 1}},
		{Text: "second chunk", Metadata: map[string]any{"source": "a.pdf", "page": 2}},
	})
	require.NoError(t, err)
	require.Len(t, c.created, 1)
	params := c.created[0].GetVectorsConfig().GetParams()
	assert.EqualValues(t, 16, params.GetSize())
	assert.Equal(t, pb.Distance_Cosine, params.GetDistance())

	require.Len(t, p.upserts, 1)
	pts := p.upserts[0].GetPoints()
	require.Len(t, pts, 2)
	assert.NotEqual(t, pts[0].GetId().GetUuid(), pts[1].GetId().GetUuid())
	assert.Equal(t, "first chunk", pts[0].GetPayload()[contentKey].GetStringValue())

	require.NoError(t, s.Upsert(t.Context(), "docs", []domain.Chunk{{Text: "third"}}))
	assert.Len(t, c.created, 1)
}

func TestCreateAndDeleteCollectionErrors(t *testing.T) {
	s, _, c := newFake()
	c.existing["docs"] = true
	err := s.CreateCollection(t.Context(), "docs", domain.DistanceCosine)
	assert.True(t, errors.Is(err, domain.ErrDuplicateCollection))

	require.NoError(t, s.CreateCollection(t.Context(), "fresh", domain.DistanceL2))
	assert.Equal(t, pb.Distance_Euclid, c.created[0].GetVectorsConfig().GetParams().GetDistance())

	err = s.DeleteCollection(t.Context(), "missing")
	assert.True(t, errors.Is(err, domain.ErrCollectionNotFound))
	require.NoError(t, s.DeleteCollection(t.Context(), "docs"))
}

func TestListCollectionsCountsEach(t *testing.T) {
	s, _, c := newFake()
	c.existing["docs"] = true
	var infos []domain.CollectionInfo
	for info, err := range s.ListCollections(t.Context()) {
		require.NoError(t, err)
		infos = append(infos, info)
	}
	assert.Equal(t, []domain.CollectionInfo{{Name: "docs", Count: 7}}, infos)
}

func TestSearchConvertsPayloadAndScores(t *testing.T) {
	s, p, _ := newFake()
	meta := toPayload(domain.Chunk{Text: "hello", Metadata: map[string]any{"source": "a.pdf", "page": 3}})
	p.result = []*pb.ScoredPoint{{Payload: meta, Score: 0.87}}

	res, err := s.Search(t.Context(), "docs", domain.SearchRequest{
		Query: "hello", K: 2, Strategy: domain.SearchSimilarityWithScore,
	})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "hello", res.Chunks[0].Text)
	assert.Equal(t, map[string]any{"source": "a.pdf", "page": int64(3)}, res.Chunks[0].Metadata)
	assert.InDelta(t, 0.87, res.Scores[0], 1e-6)
	assert.EqualValues(t, 2, p.searches[0].GetLimit())
	assert.Nil(t, p.searches[0].GetFilter())
}

func TestThresholdUsesCollectionDistance(t *testing.T) {
	s, p, c := newFake()
	require.NoError(t, s.CreateCollection(t.Context(), "docs", domain.DistanceL2))
	p.result = []*pb.ScoredPoint{
		{Payload: toPayload(domain.Chunk{Text: "near"}), Score: 0.05},
		{Payload: toPayload(domain.Chunk{Text: "far"}), Score: 1.30},
	}

	res, err := s.Search(t.Context(), "docs", domain.SearchRequest{
		Query: "q", K: 2, Strategy: domain.SearchSimilarityWithThreshold,
		Extra: domain.ExtraParams{ScoreThreshold: ptr(0.5)},
	})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "near", res.Chunks[0].Text)

	// A fresh store learns the distance from the server once.
	fresh := newWithClients(p, c, domain.DistanceCosine, hashing.NewEmbedder(16), nil)
	for range 2 {
		res, err = fresh.Search(t.Context(), "docs", domain.SearchRequest{
			Query: "q", K: 2, Strategy: domain.SearchSimilarityWithThreshold,
			Extra: domain.ExtraParams{ScoreThreshold: ptr(0.5)},
		})
		require.NoError(t, err)
		require.Len(t, res.Chunks, 1)
		assert.Equal(t, "near", res.Chunks[0].Text)
	}
	assert.Equal(t, 1, c.gets)
}

func ptr[T any](v T) *T { return &v }

func TestSearchFilterBuildsMetadataConditions(t *testing.T) {
	s, p, _ := newFake()
	_, err := s.Search(t.Context(), "docs", domain.SearchRequest{
		Query: "q", K: 1, Strategy: domain.SearchFilter,
		Extra: domain.ExtraParams{Filter: map[string]any{"page": int64(2)}},
	})
	require.NoError(t, err)
	must := p.searches[0].GetFilter().GetMust()
	require.Len(t, must, 1)
	field := must[0].GetField()
	assert.Equal(t, "metadata.page", field.GetKey())
	assert.EqualValues(t, 2, field.GetMatch().GetInteger())
}

func TestSearchMapsNotFound(t *testing.T) {
	s, p, _ := newFake()
	p.err = status.Error(codes.NotFound, "Collection `docs` doesn't exist")
	_, err := s.Search(t.Context(), "docs", domain.SearchRequest{Query: "q", K: 1, Strategy: domain.SearchSimilarity})
	assert.True(t, errors.Is(err, domain.ErrCollectionNotFound))

	p.err = status.Error(codes.Unavailable, "connection refused")
	_, err = s.Search(t.Context(), "docs", domain.SearchRequest{Query: "q", K: 1, Strategy: domain.SearchSimilarity})
	assert.True(t, errors.Is(err, domain.ErrBackend))
}

func TestDeleteSourceFiltersOnMetadata(t *testing.T) {
	s, p, _ := newFake()
	n, err := s.DeleteSource(t.Context(), "docs", "notes/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	require.Len(t, p.deletes, 1)
	must := p.deletes[0].GetPoints().GetFilter().GetMust()
	require.Len(t, must, 1)
	assert.Equal(t, "metadata.source", must[0].GetField().GetKey())
	assert.Equal(t, "notes/a.txt", must[0].GetField().GetMatch().GetKeyword())
}

func TestValueRoundTripNested(t *testing.T) {
	in := map[string]any{"tags": []any{"a", true}, "nested": map[string]any{"n": 1.5}, "none": nil}
	got := fromValue(toValue(in))
	assert.Equal(t, map[string]any{"tags": []any{"a", true}, "nested": map[string]any{"n": 1.5}, "none": nil}, got)
}
